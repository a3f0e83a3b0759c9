// Package app is the composition root for orderdesk.
//
// Run loads configuration and preferences, opens the log file and the
// configured local store backend, builds the API client, and hands a Portal
// to the terminal UI.
//
// # Portal
//
// Portal owns every manager (catalog, order history, draft, fulfillment) and
// publishes their results into a state.Store that the UI reads. There is no
// package-level state; two Portals over one backend behave like two
// independent processes.
//
//	Startup ─> draft.Load, delivery.Load
//	       ├─> catalog: refresh when missing, or stale with a clean draft
//	       └─> orders:  refresh, falling back to the cache
//
//	Submit ─> ValidateMeta ─> BuildPayload ─> AppendLocal
//	       └─> SubmitOrder (never retried) ─> MarkSynced ─> ResetAfterSubmit
//
// A failed submit leaves the local order in the history and the draft as it
// was.
//
// # Background work
//
//   - The poller probes health and refreshes the history every interval,
//     backing off to short doubling waits while the server is unreachable.
//   - The watcher reloads orders and delivery records written by other
//     processes sharing the backend, and on window focus.
package app
