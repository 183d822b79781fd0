// Package harness runs end-to-end pipeline scenarios.
//
// A scenario feeds source rows through the recorder, runs pipeline stages,
// and asserts on staging records, row counts, match decisions and report
// views. Each run uses a fresh in-memory database with deterministic clocks
// and IDs, so the resulting Snapshot is stable enough for golden files.
//
// # Scenario Format
//
//	name: strict_match
//	description: "One removal and one shred for the same serial"
//	rule_version: strict_serial_v1   # optional
//	steps:
//	  - ingest:
//	      source: drive_removals
//	      rows:
//	        - row: 2
//	          payload: { "Drive Serial Number": "ABC123XYZ" }
//	  - run: pipeline
//	assertions:
//	  - type: decision
//	    serial: ABC123XYZ
//	    decision: MATCH
//	    confidence: 1.0
//	  - type: count
//	    table: drives
//	    count: 1
//
// Rows are keyed like CSV rows: source "drive_removals", row 2 becomes
// collection csv_drive_removals with row key csv_drive_removals:data:2.
//
// # Steps
//
//   - ingest: record rows for one source
//   - run: stage | restage | promote | match | pipeline
//
// # Assertion Types
//
//   - decision: the decision for a serial (and optional rule version)
//   - count: the row count of a table
//   - staging: validity and error codes of the latest version of a row
//   - report: the serials a report view lists, in order
//
// # Golden Files
//
// RunWithGolden compares the scenario Snapshot with
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
