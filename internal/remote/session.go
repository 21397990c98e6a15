package remote

// State is a position in the remote build state machine.
type State string

const (
	StateResolvingHead        State = "resolving_head"
	StateDispatching          State = "dispatching"
	StateAwaitingRunDiscovery State = "awaiting_run_discovery"
	StateAwaitingCompletion   State = "awaiting_completion"
	StateLocatingArtifact     State = "locating_artifact"
	StateDownloading          State = "downloading"
	StateInstalling           State = "installing"
	StateSucceeded            State = "succeeded"
	StateFailed               State = "failed"
	StateCanceled             State = "canceled"
)

// IsTerminal reports whether the session has finished.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCanceled
}

// Session tracks one remote build. It is owned by the goroutine running
// Coordinator.Run and must not be read concurrently with it.
type Session struct {
	HeadSHA    string
	RunID      *int64
	RunURL     string
	Status     string
	Conclusion string
	State      State
	// ArtifactPath is the downloaded package once StateDownloading completed.
	ArtifactPath string
}
