package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Type: EventRequestStart, Request: "a"},
		{Seq: 2, Type: EventTransportCall, Path: "/v1/a"},
		{Seq: 3, Type: "request.failed", Request: "a", Status: 503},
		{Seq: 4, Type: EventRequestStart, Request: "b"},
		{Seq: 5, Type: EventTransportCall, Path: "/v1/b"},
		{Seq: 6, Type: "request.succeeded", Request: "b", Status: 200},
		{Seq: 7, Type: "chain.succeeded"},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, evaluateAssertion(trace, Assertion{Type: AssertTraceContains, Event: "request.failed"}))
	assert.NoError(t, evaluateAssertion(trace, Assertion{Type: AssertTraceContains, Event: "request.failed", Request: "a"}))

	err := evaluateAssertion(trace, Assertion{Type: AssertTraceContains, Event: "request.failed", Request: "b"})
	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, AssertTraceContains, aerr.Type)
	assert.Equal(t, "request.failed for b", aerr.Expected)
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, evaluateAssertion(trace, Assertion{
		Type:   AssertTraceOrder,
		Events: []string{"request.failed:a", "request.start:b", "chain.succeeded"},
	}))
	// Bare types match their first occurrence.
	assert.NoError(t, evaluateAssertion(trace, Assertion{
		Type:   AssertTraceOrder,
		Events: []string{EventRequestStart, EventTransportCall},
	}))

	err := evaluateAssertion(trace, Assertion{
		Type:   AssertTraceOrder,
		Events: []string{"request.succeeded:b", "request.failed:a"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "should be before")

	err = evaluateAssertion(trace, Assertion{
		Type:   AssertTraceOrder,
		Events: []string{"request.start:a", "chain.failed"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing event: chain.failed")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, evaluateAssertion(trace, Assertion{Type: AssertTraceCount, Event: EventTransportCall, Count: 2}))
	assert.NoError(t, evaluateAssertion(trace, Assertion{Type: AssertTraceCount, Event: EventRequestStart, Request: "c", Count: 0}))

	err := evaluateAssertion(trace, Assertion{Type: AssertTraceCount, Event: EventRequestStart, Count: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 occurrences")
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "1 occurrences of chain.failed",
		Actual:   "0 occurrences",
		Trace:    sampleTrace()[:3],
	}
	msg := err.Error()

	assert.Contains(t, msg, "Assertion failed: trace_count")
	assert.Contains(t, msg, "[1] request.start:a")
	assert.Contains(t, msg, "[2] transport.call /v1/a")
	assert.Contains(t, msg, "[3] request.failed:a (503)")
}

func TestEvaluateAssertion_UnknownType(t *testing.T) {
	err := evaluateAssertion(nil, Assertion{Type: "trace_sum"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown assertion type")
}
