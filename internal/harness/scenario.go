package harness

import (
	"bytes"
	"fmt"
	"net/http"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario modes.
const (
	ModeRequest = "request"
	ModeBatch   = "batch"
	ModeChain   = "chain"
)

// DefaultBaseURL is used when a scenario omits base_url.
const DefaultBaseURL = "https://api.test/v1"

// Scenario defines a scripted run of requests against fake routes.
type Scenario struct {
	// Name uniquely identifies this scenario; it names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Mode selects how requests run: one after another (request), as a
	// batch, or as a chain.
	Mode string `yaml:"mode"`

	// BaseURL resolves relative request paths.
	BaseURL string `yaml:"base_url,omitempty"`

	// StopOnFailure configures the batch or chain; unset keeps the default.
	StopOnFailure *bool `yaml:"stop_on_failure,omitempty"`

	// StopOnSuccess configures the chain.
	StopOnSuccess bool `yaml:"stop_on_success,omitempty"`

	// Routes script the fake transport.
	Routes []RouteSpec `yaml:"routes"`

	// Requests are built in order and handed to the unit.
	Requests []RequestSpec `yaml:"requests"`

	// Expect checks the outcome and final request states.
	Expect *ExpectClause `yaml:"expect,omitempty"`

	// Assertions check the trace.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// RouteSpec scripts the fake transport's answer for a URL path.
type RouteSpec struct {
	Path    string `yaml:"path"`
	Method  string `yaml:"method,omitempty"`
	Status  int    `yaml:"status,omitempty"`
	Body    string `yaml:"body,omitempty"`
	Error   string `yaml:"error,omitempty"`
	DelayMS int    `yaml:"delay_ms,omitempty"`
}

// RequestSpec describes one request.
type RequestSpec struct {
	Name         string         `yaml:"name"`
	Method       string         `yaml:"method,omitempty"`
	Path         string         `yaml:"path"`
	Params       map[string]any `yaml:"params,omitempty"`
	ResponseType string         `yaml:"response_type,omitempty"`
}

// ExpectClause specifies the expected end state.
type ExpectClause struct {
	// Outcome is the unit's terminal state: succeeded, failed or cancelled.
	Outcome string `yaml:"outcome"`

	// FailedRequest names the request the unit reports as failed.
	FailedRequest string `yaml:"failed_request,omitempty"`

	// States maps request names to expected final states; subset match.
	States map[string]string `yaml:"states,omitempty"`
}

// Assertion validates the trace.
type Assertion struct {
	// Type is trace_contains, trace_order or trace_count.
	Type string `yaml:"type"`

	// Event is the event type (trace_contains, trace_count).
	Event string `yaml:"event,omitempty"`

	// Request narrows Event to one named request.
	Request string `yaml:"request,omitempty"`

	// Events is the expected order of "type" or "type:request" labels
	// (trace_order).
	Events []string `yaml:"events,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
)

// LoadScenario reads and parses a scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML. Unknown fields (typos) and missing
// required fields are errors.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.BaseURL == "" {
		scenario.BaseURL = DefaultBaseURL
	}
	for i := range scenario.Requests {
		if scenario.Requests[i].Method == "" {
			scenario.Requests[i].Method = http.MethodGet
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

var validOutcomes = map[string]bool{"succeeded": true, "failed": true, "cancelled": true}

var validStates = map[string]bool{"idle": true, "started": true, "succeeded": true, "failed": true, "cancelled": true}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	switch s.Mode {
	case ModeRequest, ModeBatch, ModeChain:
	default:
		return fmt.Errorf("mode must be one of request, batch, chain; got %q", s.Mode)
	}
	if s.StopOnSuccess && s.Mode != ModeChain {
		return fmt.Errorf("stop_on_success only applies to chains")
	}
	if len(s.Requests) == 0 {
		return fmt.Errorf("requests list is required and must be non-empty")
	}
	if s.Expect == nil && len(s.Assertions) == 0 {
		return fmt.Errorf("expect or assertions is required")
	}

	for i, rt := range s.Routes {
		if rt.Path == "" {
			return fmt.Errorf("routes[%d]: path is required", i)
		}
		if rt.DelayMS < 0 {
			return fmt.Errorf("routes[%d]: delay_ms must be non-negative", i)
		}
	}

	names := make(map[string]bool, len(s.Requests))
	for i, rq := range s.Requests {
		if rq.Name == "" {
			return fmt.Errorf("requests[%d]: name is required", i)
		}
		if names[rq.Name] {
			return fmt.Errorf("requests[%d]: duplicate name %q", i, rq.Name)
		}
		names[rq.Name] = true
		if rq.Path == "" {
			return fmt.Errorf("requests[%d]: path is required", i)
		}
	}

	if e := s.Expect; e != nil {
		if !validOutcomes[e.Outcome] {
			return fmt.Errorf("expect.outcome must be succeeded, failed or cancelled; got %q", e.Outcome)
		}
		if e.FailedRequest != "" && !names[e.FailedRequest] {
			return fmt.Errorf("expect.failed_request: unknown request %q", e.FailedRequest)
		}
		for name, state := range e.States {
			if !names[name] {
				return fmt.Errorf("expect.states: unknown request %q", name)
			}
			if !validStates[state] {
				return fmt.Errorf("expect.states[%s]: unknown state %q", name, state)
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) < 2 {
			return fmt.Errorf("assertions[%d]: at least two events are required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
