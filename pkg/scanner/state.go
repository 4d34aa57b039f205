package scanner

// State is the lifecycle position of a scan.
type State int32

const (
	StateIdle          State = iota // nothing written yet
	StateHeaderWritten              // report header on disk
	StateScanning                   // rule units being dispatched
	StateDraining                   // all units dispatched, awaiting results
	StateDone                       // terminal
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHeaderWritten:
		return "header-written"
	case StateScanning:
		return "scanning"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}
