package errs

// Validation errors are surfaced to the caller and never retried.
var (
	ErrValidation       = New("validation failed")
	ErrInvalidInput     = Mark(New("invalid input"), ErrValidation)
	ErrInvalidTimeRange = Mark(New("end time must be after start time"), ErrValidation)
	ErrScheduleConflict = Mark(New("schedule conflict detected"), ErrValidation)
)

var (
	ErrNotFound = New("record not found")

	// ErrStaleState means an optimistic-concurrency precondition failed:
	// someone else already advanced the stored state.
	ErrStaleState = New("stale state")
)

// Configuration errors make the dispatcher skip an item silently.
var (
	ErrNoDeviceToken      = New("no device token")
	ErrInvalidDeviceToken = New("device token rejected by transport")
)
