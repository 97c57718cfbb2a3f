package email

import "errors"

var (
	// ErrNotConfigured means no sender credentials were provided.
	ErrNotConfigured = errors.New("email: sender not configured")

	// ErrSendFailed wraps provider-level delivery failures.
	ErrSendFailed = errors.New("email: send failed")
)
