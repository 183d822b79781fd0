// Package stage derives Silver staging records from Bronze raw events.
//
// Stage is a pure function of a RawEvent: the same event always yields
// the same StagingRecord, so records can be re-derived at any time
// (Restage, RestageAll) after a normalizer change without touching the
// raw log.
//
// Field access goes through Extract, which is total: a payload of any
// shape yields a Field, never an error. Problems with the data become
// validation codes on the record. Hard codes mark the record invalid and
// keep it out of promotion; soft codes only flag it.
package stage
