// Package store provides durable SQLite storage for the custody ledger.
//
// The database holds three layers:
//   - Bronze: raw_events, an append-only log of captured source rows
//   - Silver: stg_shred_serial and stg_drive_removal, one derived row per raw event
//   - Gold: drives, batches, drive_events and match_decisions
//
// Reporting views over the Gold layer are created by migrations.
//
// All reads return rows in a deterministic order: raw events by seq,
// entities by their business key, events by (event_time, id).
// No query depends on SQLite's unspecified row order.
package store
