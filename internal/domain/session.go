package domain

// FlowState is the lifecycle state of an in-flight login session, for both
// the interactive and the device-code flow. Terminal states are sticky: once
// a session reaches one, every later poll returns the same result.
type FlowState string

const (
	FlowPending          FlowState = "pending"
	FlowAwaitingRedirect FlowState = "awaiting_redirect"
	FlowExchanging       FlowState = "exchanging"
	FlowComplete         FlowState = "complete"
	FlowExpired          FlowState = "expired"
	FlowDenied           FlowState = "denied"
	FlowFailed           FlowState = "failed"
)

func (s FlowState) Terminal() bool {
	switch s {
	case FlowComplete, FlowExpired, FlowDenied, FlowFailed:
		return true
	}
	return false
}
