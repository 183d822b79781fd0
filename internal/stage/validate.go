package stage

// Severity of a validation code. Hard codes make a record invalid; only a
// missing primary serial is Hard.
type Severity int

const (
	Soft Severity = iota
	Hard
)

// Validation codes, recorded on staging records in the order below.
const (
	CodeMissingSerial        = "MISSING_SERIAL"
	CodeSerialIsURL          = "SERIAL_IS_URL"
	CodeBatchDateUnparseable = "BATCH_DATE_UNPARSEABLE"
	CodeMissingDriveSerial   = "MISSING_DRIVE_SERIAL"
	CodeDriveSerialIsURL     = "DRIVE_SERIAL_IS_URL"
	CodeComputerSerialIsURL  = "COMPUTER_SERIAL_IS_URL"
)

var severities = map[string]Severity{
	CodeMissingSerial:        Hard,
	CodeSerialIsURL:          Soft,
	CodeBatchDateUnparseable: Soft,
	CodeMissingDriveSerial:   Hard,
	CodeDriveSerialIsURL:     Soft,
	CodeComputerSerialIsURL:  Soft,
}

// SeverityOf returns the severity of code. Unknown codes are Hard.
func SeverityOf(code string) Severity {
	if s, ok := severities[code]; ok {
		return s
	}
	return Hard
}

// allSoft reports whether no code in codes is Hard.
func allSoft(codes []string) bool {
	for _, c := range codes {
		if SeverityOf(c) == Hard {
			return false
		}
	}
	return true
}

// validateShred checks a shred-log row. Each rule runs independently.
func validateShred(serialRaw, serialNorm string, batchDate Field, batchDateOK bool) []string {
	codes := []string{}
	if serialNorm == "" {
		codes = append(codes, CodeMissingSerial)
	}
	if LooksLikeURL(serialRaw) {
		codes = append(codes, CodeSerialIsURL)
	}
	if batchDate.Present && !batchDateOK {
		codes = append(codes, CodeBatchDateUnparseable)
	}
	return codes
}

// validateRemoval checks a drive-removal row. Each rule runs independently.
func validateRemoval(driveRaw, driveNorm, computerRaw string) []string {
	codes := []string{}
	if driveNorm == "" {
		codes = append(codes, CodeMissingDriveSerial)
	}
	if LooksLikeURL(driveRaw) {
		codes = append(codes, CodeDriveSerialIsURL)
	}
	if LooksLikeURL(computerRaw) {
		codes = append(codes, CodeComputerSerialIsURL)
	}
	return codes
}
