// Package promote derives Gold entities and lifecycle events from valid
// staging records.
//
// Drives and batches are upserted: MergeDrive and MergeBatch are pure
// functions that fold one observation into the stored entity, widening
// its first/last-seen bounds and never narrowing them. Drive events are
// insert-once, keyed by (raw event, event type), so promoting the same
// staging record again changes nothing.
//
// Each record is promoted in its own transaction. A constraint violation
// aborts that record only; PromoteAllValid carries on and reports every
// such defect in its returned error.
package promote
