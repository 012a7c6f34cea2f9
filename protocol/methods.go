package protocol

// LSP method constants.
const (
	// Lifecycle
	MethodInitialize  = "initialize"
	MethodInitialized = "initialized"
	MethodShutdown    = "shutdown"
	MethodExit        = "exit"
	MethodSetTrace    = "$/setTrace"

	// Text document sync
	MethodDidOpen   = "textDocument/didOpen"
	MethodDidChange = "textDocument/didChange"
	MethodDidClose  = "textDocument/didClose"
	MethodDidSave   = "textDocument/didSave"

	// Language features
	MethodHover      = "textDocument/hover"
	MethodDefinition = "textDocument/definition"
	MethodReferences = "textDocument/references"

	// Workspace
	MethodDidChangeConfiguration    = "workspace/didChangeConfiguration"
	MethodDidChangeWorkspaceFolders = "workspace/didChangeWorkspaceFolders"
	MethodDidChangeWatchedFiles     = "workspace/didChangeWatchedFiles"
	MethodExecuteCommand            = "workspace/executeCommand"

	// Client notifications (server -> client)
	MethodLogMessage  = "window/logMessage"
	MethodShowMessage = "window/showMessage"
)

// Build protocol. These are sightline extensions, not part of LSP.
const (
	MethodBuildProject  = "sightline/buildProject"
	MethodBuildMessages = "sightline/buildMessages"
	MethodBuildFinished = "sightline/buildFinished"

	// CommandBuildProject is the workspace/executeCommand alias of
	// MethodBuildProject. Arguments: id, forceMakeProject, ignoreErrors.
	CommandBuildProject = "sightline.buildProject"
)
