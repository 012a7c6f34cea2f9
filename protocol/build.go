package protocol

// BuildProjectParams asks the server to build the modules behind a run
// configuration.
type BuildProjectParams struct {
	// ID is the opaque run configuration id.
	ID               string `json:"id"`
	ForceMakeProject bool   `json:"forceMakeProject,omitempty"`
	IgnoreErrors     bool   `json:"ignoreErrors,omitempty"`
	// SessionID correlates this build with an existing execution session.
	// Zero asks the server to mint a new one.
	SessionID int64 `json:"sessionId,omitempty"`
}

// BuildProjectResult acknowledges a build request. Started is false when
// validation or submission failed; compiler results arrive later through
// BuildFinished.
type BuildProjectResult struct {
	Started   bool  `json:"started"`
	SessionID int64 `json:"sessionId,omitempty"`
}

// BuildResult is the terminal summary of one build.
type BuildResult struct {
	Errors   int  `json:"errors"`
	Warnings int  `json:"warnings"`
	Aborted  bool `json:"aborted"`
}

// Succeeded reports whether the build finished without errors.
func (r BuildResult) Succeeded() bool { return r.Errors == 0 && !r.Aborted }

// BuildMessages carries the compiler messages for one source file. URI is
// empty for messages that are not attached to any file.
type BuildMessages struct {
	SessionID   int64        `json:"sessionId"`
	URI         DocumentURI  `json:"uri"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// BuildFinishedParams is sent exactly once per build.
type BuildFinishedParams struct {
	SessionID int64       `json:"sessionId"`
	Result    BuildResult `json:"result"`
}
