package sightline

import (
	"sort"

	"github.com/gossip-lsp/sightline/protocol"
)

// buildCapabilities inspects which handlers are registered and returns
// a ServerCapabilities struct that accurately reflects what the server supports.
func (s *Server) buildCapabilities() protocol.ServerCapabilities {
	caps := protocol.ServerCapabilities{}

	syncOpts := &protocol.TextDocumentSyncOptions{
		OpenClose: true,
		Change:    protocol.SyncIncremental,
	}
	if _, ok := s.getHandler(protocol.MethodDidSave); ok {
		syncOpts.Save = &protocol.SaveOptions{IncludeText: true}
	}
	caps.TextDocumentSync = syncOpts

	if _, ok := s.getHandler(protocol.MethodHover); ok {
		caps.HoverProvider = true
	}
	if _, ok := s.getHandler(protocol.MethodDefinition); ok {
		caps.DefinitionProvider = true
	}
	if _, ok := s.getHandler(protocol.MethodReferences); ok {
		caps.ReferencesProvider = true
	}

	s.mu.RLock()
	commands := make([]string, 0, len(s.commands))
	for name := range s.commands {
		commands = append(commands, name)
	}
	_, build := s.rawHandlers[protocol.MethodBuildProject]
	s.mu.RUnlock()
	if len(commands) > 0 {
		sort.Strings(commands)
		caps.ExecuteCommandProvider = &protocol.ExecuteCommandOptions{Commands: commands}
	}
	if build {
		caps.Experimental = map[string]bool{"buildProject": true}
	}

	caps.Workspace = &protocol.ServerWorkspaceCapabilities{
		WorkspaceFolders: &protocol.WorkspaceFoldersServerCapabilities{
			Supported:           true,
			ChangeNotifications: true,
		},
	}

	return caps
}
