// Package courier orchestrates client-side HTTP requests.
//
// A Manager owns the transport session and a callback dispatcher. Requests
// are built against a Manager, started, and report exactly one terminal
// outcome: succeeded, failed (with a typed *Error) or cancelled.
//
// ARCHITECTURE:
//
// Request lifecycle:
//
//	Idle -> Started -> Succeeded | Failed | Cancelled
//
// Transport calls run on their own goroutines. Decoding and response filters
// run on the transport goroutine; the terminal transition and every
// callback (accessories, success/failure/cancelled, batch and chain
// aggregation) run on the Manager's single dispatcher goroutine, in FIFO
// order. A request served from cache completes on the caller's stack
// without touching the dispatcher.
//
// Composition:
//   - Batch runs N requests concurrently and reports one joint outcome.
//   - Chain runs requests one at a time, each step chosen from a static
//     list or produced by a builder from the previous step.
//
// Accessory order per request:
//
//	WillStart -> (network) -> WillStop -> completion callback -> DidStop
//
// Synchronous variants (SyncRequest, SyncBatch, SyncChain) wait on the
// unit's Done channel. They must not be called from a completion callback:
// the dispatcher would be waiting on itself.
package courier
