package session

import "errors"

var (
	// ErrInvalidKey is returned for report keys that are not path safe.
	ErrInvalidKey = errors.New("invalid report key")

	// ErrReportNotFound is returned when no snapshot exists for a key.
	ErrReportNotFound = errors.New("report not found")

	// ErrUnsupportedSnapshot is returned for snapshots from a newer version.
	ErrUnsupportedSnapshot = errors.New("unsupported snapshot version")
)
