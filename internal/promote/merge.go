package promote

import "github.com/roach88/driveledger/internal/ledger"

// MergeDrive folds incoming into existing. With no existing drive the
// incoming one is returned as-is. The existing ID always wins.
func MergeDrive(existing *ledger.Drive, incoming ledger.Drive) ledger.Drive {
	if existing == nil {
		return incoming
	}
	merged := *existing
	if incoming.FirstSeenAt.Before(merged.FirstSeenAt) {
		merged.FirstSeenAt = incoming.FirstSeenAt
	}
	if incoming.LastSeenAt.After(merged.LastSeenAt) {
		merged.LastSeenAt = incoming.LastSeenAt
	}
	return merged
}

// MergeBatch folds incoming into existing, with the same bound rules as
// MergeDrive. Descriptive attributes from an observation at or after the
// stored last-seen time replace stored values; older observations only
// fill blanks. Blank incoming values never erase anything.
func MergeBatch(existing *ledger.Batch, incoming ledger.Batch) ledger.Batch {
	if existing == nil {
		return incoming
	}
	merged := *existing
	newer := !incoming.LastSeenAt.Before(existing.LastSeenAt)

	merged.BatchDate = mergeAttr(merged.BatchDate, incoming.BatchDate, newer)
	merged.Client = mergeAttr(merged.Client, incoming.Client, newer)
	merged.Location = mergeAttr(merged.Location, incoming.Location, newer)
	merged.Tech = mergeAttr(merged.Tech, incoming.Tech, newer)

	if incoming.FirstSeenAt.Before(merged.FirstSeenAt) {
		merged.FirstSeenAt = incoming.FirstSeenAt
	}
	if incoming.LastSeenAt.After(merged.LastSeenAt) {
		merged.LastSeenAt = incoming.LastSeenAt
	}
	return merged
}

func mergeAttr(current, incoming string, overwrite bool) string {
	if incoming == "" {
		return current
	}
	if overwrite || current == "" {
		return incoming
	}
	return current
}
