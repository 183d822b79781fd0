package stage

import (
	"time"

	"github.com/roach88/driveledger/internal/ledger"
)

// Stage derives the staging record for ev. Returns ok=false when ev's
// collection does not classify as a known record kind.
//
// Stage is pure: it reads nothing but ev and never fails.
func Stage(ev ledger.RawEvent) (rec ledger.StagingRecord, ok bool) {
	switch Classify(ev.CollectionID) {
	case ledger.KindShredSerial:
		return stageShred(ev), true
	case ledger.KindDriveRemoval:
		return stageRemoval(ev), true
	}
	return ledger.StagingRecord{}, false
}

// eventTime is when the source says the row happened, falling back to
// capture time.
func eventTime(ev ledger.RawEvent) time.Time {
	if ev.SourceTimestamp != nil {
		return ev.SourceTimestamp.UTC()
	}
	return ev.IngestedAt.UTC()
}

func stageShred(ev ledger.RawEvent) ledger.StagingRecord {
	p := ev.Payload

	batchID := Extract(p, aliasBatchID...).Text()
	batchDateField := Extract(p, aliasBatchDate...)
	batchDate, batchDateOK := ParseBatchDate(batchDateField.Value)
	serial := Extract(p, aliasSerial...)
	serialNorm := NormalizeSerial(serial.Value)

	dedupeKey := ""
	if batchID != "" && serialNorm != "" {
		dedupeKey = batchID + "|" + serialNorm
	}

	codes := validateShred(serial.Value, serialNorm, batchDateField, batchDateOK)

	return ledger.StagingRecord{
		Kind:       ledger.KindShredSerial,
		RawEventID: ev.ID,
		EventTime:  eventTime(ev),
		IsValid:    allSoft(codes),
		Errors:     codes,
		Shred: &ledger.ShredFields{
			BatchID:    batchID,
			BatchDate:  batchDate,
			Client:     Extract(p, aliasClient...).Text(),
			Location:   Extract(p, aliasLocation...).Text(),
			Tech:       Extract(p, aliasTech...).Text(),
			SerialRaw:  serial.Value,
			SerialNorm: serialNorm,
			DedupeKey:  dedupeKey,
		},
	}
}

func stageRemoval(ev ledger.RawEvent) ledger.StagingRecord {
	p := ev.Payload

	computer := Extract(p, aliasComputerSerial...)
	drive := Extract(p, aliasDriveSerial...)
	driveNorm := NormalizeSerial(drive.Value)

	codes := validateRemoval(drive.Value, driveNorm, computer.Value)

	return ledger.StagingRecord{
		Kind:       ledger.KindDriveRemoval,
		RawEventID: ev.ID,
		EventTime:  eventTime(ev),
		IsValid:    allSoft(codes),
		Errors:     codes,
		Removal: &ledger.RemovalFields{
			Client:             Extract(p, aliasClient...).Text(),
			ComputerSerialRaw:  computer.Value,
			ComputerSerialNorm: NormalizeSerial(computer.Value),
			DriveSerialRaw:     drive.Value,
			DriveSerialNorm:    driveNorm,
			Notes:              Extract(p, aliasNotes...).Text(),
			TechEmail:          Extract(p, aliasTechEmail...).Text(),
		},
	}
}
