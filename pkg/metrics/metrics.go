package metrics

/*
Labels and so on for metrics used in Shepherd.
*/

const (
	LabelSuccess = "success"
	LabelOutcome = "outcome"
	LabelAction  = "action"

	LabelMethod = "method"
	LabelRoute  = "route"
)
