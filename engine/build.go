package engine

import "github.com/gossip-lsp/sightline/protocol"

// MessageCategory classifies a compiler message.
type MessageCategory int

const (
	CategoryStatistics MessageCategory = iota
	CategoryInformation
	CategoryWarning
	CategoryError
)

var categoryNames = [...]string{"statistics", "information", "warning", "error"}

func (c MessageCategory) String() string {
	if c >= 0 && int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "unknown"
}

// CompilerMessage is one message produced during a build. URI is empty for
// messages not tied to a file. Line and Column are zero-based.
type CompilerMessage struct {
	Category MessageCategory
	Message  string
	URI      protocol.DocumentURI
	Line     uint32
	Column   uint32
	// Prefix is the tool-specific tag exported with the message.
	Prefix string
}

// CompileContext exposes the messages a build has produced so far.
type CompileContext interface {
	Messages(c MessageCategory) []CompilerMessage
}

// TaskResult is the terminal summary of one build task.
type TaskResult struct {
	Errors   int
	Warnings int
	Aborted  bool
}

// Toolchain is the configured compiler toolchain.
type Toolchain struct {
	Name    string
	Command []string
}

// RunConfiguration is a named build target.
type RunConfiguration struct {
	ID    string
	Name  string
	Paths []string
	// SkipCompileBeforeLaunch opts the configuration out of builds.
	SkipCompileBeforeLaunch bool
}

// BuildTask describes one build to run.
type BuildTask struct {
	Configuration RunConfiguration
	Force         bool
	IgnoreErrors  bool
}

// BuildSubsystem is the compiler side of the engine.
type BuildSubsystem interface {
	// Toolchain returns the configured toolchain, or nil when there is none.
	Toolchain() *Toolchain
	RunConfiguration(id string) (RunConfiguration, bool)
	NewBuildTask(cfg RunConfiguration, force, ignoreErrors bool) (*BuildTask, error)
	// Refresh synchronises the subsystem with workspace state before a build.
	Refresh()
	// SubmitBuild starts task and returns without waiting for it.
	// onDiagnostics may be called several times; onComplete is called
	// exactly once. Both callbacks run on the serialized context.
	SubmitBuild(task *BuildTask, sessionID int64, onDiagnostics func(CompileContext), onComplete func(TaskResult)) error
}
