package adapter

// State of the poll loop.
type State int

const (
	// Idle means no fetch is running or pending and polling is enabled.
	Idle State = iota
	// Fetching means a fetch is in flight.
	Fetching
	// Reconciling means a fetched configuration is being compared and
	// delivered.
	Reconciling
	// Armed means a deferred fetch is pending.
	Armed
	// Disabled means polling is switched off and nothing is pending.
	Disabled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Reconciling:
		return "reconciling"
	case Armed:
		return "armed"
	case Disabled:
		return "disabled"
	}
	return "unknown"
}
