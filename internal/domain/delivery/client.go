package delivery

import "context"

// Outcome categorizes a delivery attempt's result. Anything outside
// Accepted within the call budget is transient unless the remote
// explicitly rejected the recipient or payload.
type Outcome int

const (
	Accepted Outcome = iota
	Rejected         // Permanent: invalid recipient, rejected payload. Never retried.
	TransientError
)

// Result carries the categorized outcome plus the reason for non-accepts.
type Result struct {
	Outcome Outcome
	Reason  string
}

// Client defines an interface for handing a rendered message to the
// remote notification API. Implementations wrap a concrete transport;
// the dispatch machinery only sees the categorized result.
type Client interface {
	Send(ctx context.Context, userID int64, message string) (Result, error)
}
