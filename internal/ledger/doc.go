// Package ledger provides the record types shared by every layer of the
// drive custody pipeline.
//
// This package contains types, canonical encoding and identity functions
// only. All other internal packages import ledger; ledger imports nothing
// internal.
//
// Layers:
//   - Bronze: RawEvent, append-only, content-addressed
//   - Silver: StagingRecord, one per RawEvent, derived purely from it
//   - Gold: Drive, Batch (upserted entities) and DriveEvent (insert-once)
//   - MatchDecision: one per (drive, rule version)
//
// Key constraints:
//   - Content hashes use canonical JSON (RFC 8785 key order, NFC strings)
//   - All timestamps are UTC
//   - JSON tags use snake_case
package ledger
