// Package harness runs scripted request scenarios against a Manager backed
// by a fake transport and checks the resulting trace.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: chain_failover
//	description: "Fall back to the mirror when the primary is down"
//	mode: chain              # request | batch | chain
//	stop_on_failure: false
//	stop_on_success: true
//	routes:
//	  - path: /v1/primary
//	    status: 503
//	  - path: /v1/mirror
//	    body: '{"ok":true}'
//	requests:
//	  - name: primary
//	    path: primary
//	  - name: mirror
//	    path: mirror
//	expect:
//	  outcome: succeeded
//	  states: { primary: failed, mirror: succeeded }
//	assertions:
//	  - type: trace_order
//	    events: ["request.failed:primary", "request.succeeded:mirror"]
//
// Relative request paths resolve against base_url, which defaults to
// https://api.test/v1.
//
// # Assertion Types
//
//   - trace_contains: an event (optionally for a named request) occurs
//   - trace_order: events occur in the given order, not necessarily adjacent
//   - trace_count: an event occurs exactly N times
//
// # Deterministic Testing
//
// Requests get sequential ids and every trace event a sequence number
// in recording order. Request and chain scenarios produce identical
// traces across runs and can be compared with golden files; batch
// scenarios run children concurrently and should rely on assertions.
package harness
