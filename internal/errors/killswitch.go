package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a kill switch error for logging/metrics without leaking
// the underlying message, which Sanitize already handles for the
// human-readable text.
type Kind string

const (
	// KindPathUnreadable covers a detector failing to stat/open a file
	// (permission denied, removed mid-scan, etc).
	KindPathUnreadable Kind = "path_unreadable"
	// KindInvalidPattern covers a malformed user-supplied canary glob or
	// ransom-note regex rejected at registration time.
	KindInvalidPattern Kind = "invalid_pattern"
	// KindBackupIOFailure covers BackupAction/S3Action failing to copy or
	// upload a file.
	KindBackupIOFailure Kind = "backup_io_failure"
	// KindLogIOFailure covers ThreatLog failing to read, write, or rename
	// its backing store.
	KindLogIOFailure Kind = "log_io_failure"
	// KindConfigOutOfRange covers a configuration value rejected by
	// config.Validate.
	KindConfigOutOfRange Kind = "config_out_of_range"
)

// KillSwitchError pairs a Kind with the underlying cause, so callers can
// branch on Kind (e.g. to decide whether a failure should still count as
// "no threat found" vs. surface as a daemon health problem) without string
// matching.
type KillSwitchError struct {
	Kind Kind
	Err  error
}

func (e *KillSwitchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *KillSwitchError) Unwrap() error { return e.Err }

// Wrap annotates err with a Kind.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &KillSwitchError{Kind: kind, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *KillSwitchError, and false otherwise.
func KindOf(err error) (Kind, bool) {
	var ke *KillSwitchError
	if errors.As(err, &ke) {
		return ke.Kind, true
	}
	return "", false
}
