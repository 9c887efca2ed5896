package fed

import "fmt"

// A ValidationError reports malformed caller input. It is surfaced
// immediately to the action layer and never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// A ResolutionError reports that a remote actor or collection could
// not be resolved: DNS failure, unexpected HTTP status, or a malformed
// document.
type ResolutionError struct {
	ID  string
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.ID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// A SigningError reports a missing or unusable signing key. It is
// fatal for the operation that needed the signature; retrying will not
// help.
type SigningError struct {
	KeyID string
	Err   error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("sign with %s: %v", e.KeyID, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// A DeliveryError reports a transient delivery failure: network error,
// timeout, 5xx, or a retryable 4xx. The dispatcher retries it with
// backoff.
type DeliveryError struct {
	Inbox      string
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("deliver to %s: %v", e.Inbox, e.Err)
	}
	return fmt.Sprintf("deliver to %s: status %d", e.Inbox, e.StatusCode)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// A PermanentRejection reports that the remote inbox rejected the
// activity as malformed or unauthorized. It is recorded and never
// retried.
type PermanentRejection struct {
	Inbox      string
	StatusCode int
}

func (e *PermanentRejection) Error() string {
	return fmt.Sprintf("deliver to %s: rejected with status %d", e.Inbox, e.StatusCode)
}
