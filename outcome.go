package ddns

// Outcome is the result of a single reconciliation pass.
type Outcome int

const (
	NoChangeNeeded Outcome = iota
	Updated
	RecordNotFound
	LookupFailed
	ResolveFailed
	UpdateFailed
)

// Process exit codes. ExitConfig and ExitUnknown are never produced by a pass;
// they belong to the command wrapping it.
const (
	ExitOK           = 0
	ExitUnknown      = 1
	ExitConfig       = 2
	ExitResolve      = 3
	ExitNotFound     = 4
	ExitLookup       = 5
	ExitUpdateFailed = 6
)

func (o Outcome) String() string {
	switch o {
	case NoChangeNeeded:
		return "no change needed"
	case Updated:
		return "updated"
	case RecordNotFound:
		return "record not found"
	case LookupFailed:
		return "record lookup failed"
	case ResolveFailed:
		return "resolve failed"
	case UpdateFailed:
		return "update failed"
	}
	return "unknown"
}

// OK reports whether the record is known to match the public address.
func (o Outcome) OK() bool {
	return o == NoChangeNeeded || o == Updated
}

func (o Outcome) ExitCode() int {
	switch o {
	case NoChangeNeeded, Updated:
		return ExitOK
	case ResolveFailed:
		return ExitResolve
	case RecordNotFound:
		return ExitNotFound
	case LookupFailed:
		return ExitLookup
	case UpdateFailed:
		return ExitUpdateFailed
	}
	return ExitUnknown
}
