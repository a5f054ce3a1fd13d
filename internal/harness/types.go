package harness

// Trace event types. Request and unit outcomes are suffixed with the
// terminal state, e.g. "request.failed" or "chain.succeeded".
const (
	EventRequestStart  = "request.start"
	EventTransportCall = "transport.call"
)

// TraceEvent is one observation made while a scenario ran.
type TraceEvent struct {
	Type    string `json:"type"`
	Request string `json:"request,omitempty"`
	Path    string `json:"path,omitempty"`
	Status  int    `json:"status,omitempty"`
	Seq     int64  `json:"seq"`
}

// label renders the event as "type" or "type:request", the form used by
// trace_order assertions.
func (e TraceEvent) label() string {
	if e.Request == "" {
		return e.Type
	}
	return e.Type + ":" + e.Request
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Outcome is the terminal state of the scenario's unit.
	Outcome string `json:"outcome"`

	// Trace contains every recorded event in order.
	Trace []TraceEvent `json:"trace"`

	// States maps request names to their final state.
	States map[string]string `json:"states"`

	// Errors contains failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		States: make(map[string]string),
		Errors: []string{},
	}
}

// AddError records a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
