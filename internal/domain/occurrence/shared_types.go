package occurrence

// Status tracks an occurrence through its lifecycle.
// PENDING and QUEUED are the only non-terminal states; SENT and
// FAILED_PERMANENT are terminal and immutable.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusQueued          Status = "QUEUED"
	StatusSent            Status = "SENT"
	StatusFailedPermanent Status = "FAILED_PERMANENT"
)

// EventKind tags the yearly event an occurrence belongs to. The
// scheduling, recovery and delivery machinery is identical across kinds;
// only message rendering varies.
type EventKind string

const (
	KindBirthday EventKind = "BIRTHDAY"
)
