package database

// State is the migration state of a Connection.
//
//	Opening ──upgrade needed──▶ PendingUpgrade ──open succeeds──▶ Ready
//	   │                                                           ▲
//	   ├──opened below the declared version──▶ LegacyPostOpenUpgrade ┘
//	   ├──opened at the declared version──────────────────────────▶ Ready
//	   └──error or aborted upgrade──▶ Failed
//
// Close moves any state to Closed.
type State int

const (
	StateOpening State = iota
	StatePendingUpgrade
	StateLegacyPostOpenUpgrade
	StateReady
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StatePendingUpgrade:
		return "pending-upgrade"
	case StateLegacyPostOpenUpgrade:
		return "legacy-post-open-upgrade"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
