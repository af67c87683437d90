package app

// StopReason records why a run ended.
type StopReason string

const (
	StopUnknown StopReason = "unknown"
	StopSignal  StopReason = "signal"
	// StopIdle means every job fired and finished.
	StopIdle       StopReason = "idle"
	StopFatalError StopReason = "fatal_error"
)
