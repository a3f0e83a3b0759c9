// Package localstore is the durable cache underneath every orderdesk dataset.
//
// Values are stored as JSON inside an envelope:
//
//	{"version": 3, "saved_at": "2025-01-02T15:04:05Z", "data": {...}}
//
// under keys of the form orderdesk_<dataset>_v<SchemaVersion>. A read that
// finds a different version, malformed JSON, or a backend error reports the
// dataset as absent. Callers never see a partially decoded value and never get
// an error from Load; the safe default is a cold start.
//
// # Backends
//
//   - Memory: in-process map; Peer handles model several tabs on one medium.
//   - File: one file per key, atomic rename, directory polling for changes.
//   - Redis: SET plus PUBLISH on MutationChannel; Subscribe uses pub/sub.
//   - Postgres: gorm table orderdesk_entries, no change feed.
//
// Every backend is last-write-wins. There is no locking between instances.
package localstore
