// ABOUTME: Pipeline synchronization and clock-correction states
// ABOUTME: Tracks progress toward a started, clock-locked output
package player

// SyncState is the pipeline's progress toward synchronized output
type SyncState int

const (
	// SyncStarting fills the sinks until enough audio is cached
	SyncStarting SyncState = iota
	// SyncWaitSync has announced Started and waits for a Resync
	SyncWaitSync
	// SyncInSync renders against the master clock
	SyncInSync
)

func (s SyncState) String() string {
	switch s {
	case SyncStarting:
		return "starting"
	case SyncWaitSync:
		return "waitsync"
	case SyncInSync:
		return "insync"
	default:
		return "unknown"
	}
}

// SyncType selects how clock error is corrected
type SyncType int

const (
	// SyncDiscontinuous steps the master clock on error
	SyncDiscontinuous SyncType = iota
	// SyncResample bends the sink's resample ratio instead
	SyncResample
	// syncUnset forces the first SetSyncType call to apply
	syncUnset SyncType = -1
)

func (t SyncType) String() string {
	switch t {
	case SyncDiscontinuous:
		return "clock feedback"
	case SyncResample:
		return "resample"
	default:
		return "invalid"
	}
}
