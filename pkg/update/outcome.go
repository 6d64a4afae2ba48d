// Package update holds the per-service steps of a reconciliation pass:
// probing the registry for the service's image, applying the update
// (and rolling back on failure), and cleaning up superseded images.
package update

// Outcome is how the attempt to update one service ended.
type Outcome int

const (
	// Unavailable: the image could not be resolved from its registry.
	Unavailable Outcome = iota
	// Failed: the update command errored or timed out.
	Failed
	// NoChange: the update went through but the image stayed the same.
	NoChange
	// Updated: the service now runs a different image.
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Unavailable:
		return "unavailable"
	case Failed:
		return "failed"
	case NoChange:
		return "nochange"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

// Result records what happened to one service in one pass.
type Result struct {
	Service string
	Outcome Outcome
	// Image is the reference the update was attempted with (digest
	// stripped).
	Image string
	// From and To are the previous and current images after a
	// successful update.
	From, To string
	// RolledBack is set when a rollback was attempted.
	RolledBack bool
	Err        error
}
