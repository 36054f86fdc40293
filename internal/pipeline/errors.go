package pipeline

import "errors"

// Sentinel errors a caller can match with errors.Is.
var (
	ErrBadEmailAddress    = errors.New("pipeline: address is empty or not a valid email")
	ErrIncompleteSettings = errors.New("pipeline: required fields remain empty after default-fill")
	ErrImapConnect        = errors.New("pipeline: no IMAP connection strategy succeeded")
	ErrSmtpConnect        = errors.New("pipeline: no SMTP connection strategy succeeded")
	ErrCancelled          = errors.New("pipeline: run was cancelled")
)
