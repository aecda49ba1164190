// Package transcript reconciles the three views of a group conversation into
// one ordered, deduplicated list of records.
//
// A message reaches the client up to three times: as an optimistic record
// when the local user sends it, as a push over the realtime channel, and as a
// persisted record in the next history fetch. The Engine merges all three.
//
// # Classification
//
// Each incoming record is checked against the group's transcript:
//
//  1. Its id (within its id kind) is already present: discarded.
//  2. It is a pushed or persisted self record with a durable id, and an
//     optimistic record has the same author and text within DefaultTolerance:
//     the optimistic record is promoted to the durable id and keeps its slot.
//  3. Otherwise it is inserted.
//
// The transcript is sorted by sender timestamp, ties broken by insertion
// order, so re-rendering never reorders equal timestamps.
//
// # Failures
//
// A record that fails to decode or decrypt is logged and dropped. It never
// aborts the rest of its batch.
//
// # Concurrency
//
// Ingestion for one group is serialized across decrypt and merge. Each merge
// builds a new slice and publishes it atomically, so readers never see a
// half-applied merge. History loads are guarded by TryBeginLoad: a second
// load while one is in flight is rejected, not queued.
package transcript
