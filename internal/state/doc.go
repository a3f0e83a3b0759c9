// Package state holds the snapshot shared between the background poller, the
// cross-process watcher, and the TUI.
//
// Writers (the portal after each refresh, submit, or delivery transition)
// replace one slice of the snapshot at a time under a write lock. The UI reads
// whole snapshots under a read lock and renders them on its own schedule.
//
//	Portal / Poller / Watcher        UI
//	  SetOrders, SetDelivery  ──→  Snapshot()
//	  Update(latency, err)          render
//
// Every setter and Snapshot copy slices and maps, so the UI may mutate what it
// receives without racing the writers.
//
// Update follows a keep-last-good rule: a failed poll records LastError and
// increments ConsecutiveFailures but leaves the data alone. Two failures in a
// row mark the snapshot offline.
//
// The zero Store is ready to use.
package state
