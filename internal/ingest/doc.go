// Package ingest is the ingestion boundary of the ledger.
//
// Source adapters (the spreadsheet poller, the CSV backfill reader) turn
// source rows into Row values and hand them to a Recorder, which appends
// them to the Bronze log. Recording performs no validation: any payload
// is captured, and bad data surfaces later as staging validation codes.
//
// Recording is idempotent. A row whose identity (source system,
// collection, partition, row key, content hash) was already captured is
// reported as a Duplicate and nothing is written. An edited row keeps its
// row key but changes content, so it is captured as a new raw event
// alongside the old one.
package ingest
