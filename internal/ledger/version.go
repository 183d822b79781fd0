package ledger

const (
	// SchemaVersion is stamped on raw events captured by this build.
	SchemaVersion = "v1"

	// DefaultSourceSystem names the origin of spreadsheet rows.
	DefaultSourceSystem = "google_sheets"
)
