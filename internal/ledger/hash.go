package ledger

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainPayload    = "driveledger/payload/v1"
	DomainRawEvent   = "driveledger/raw_event/v1"
	DomainDriveEvent = "driveledger/drive_event/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash returns the deterministic hash of a payload's canonical bytes.
// Field order and Unicode composition of the input do not affect it.
func ContentHash(p Payload) string {
	return hashWithDomain(DomainPayload, MarshalCanonical(p))
}

// RawEventID computes the content-addressed ID of a raw event from its full
// identity tuple. Re-ingesting identical content for the same row key yields
// the same ID; an edit yields a new one.
func RawEventID(sourceSystem, collectionID, partition, rowKey, contentHash string) string {
	identity := Payload{
		"source_system":        sourceSystem,
		"source_collection_id": collectionID,
		"source_partition":     partition,
		"source_row_key":       rowKey,
		"content_hash":         contentHash,
	}
	return hashWithDomain(DomainRawEvent, MarshalCanonical(identity))
}

// DriveEventID computes the ID of the lifecycle event a raw event promotes
// to. One raw event yields at most one event per type.
func DriveEventID(rawEventID string, eventType EventType) string {
	identity := Payload{
		"raw_event_id": rawEventID,
		"event_type":   string(eventType),
	}
	return hashWithDomain(DomainDriveEvent, MarshalCanonical(identity))
}
