package difficulty

import "errors"

var (
	ErrCorruptArtifact    = errors.New("model artifact is corrupt")
	ErrInvalidObservation = errors.New("observation must be finite")
	ErrNoModel            = errors.New("no model loaded")
	ErrStaleArtifact      = errors.New("model artifact uses an outdated label rule")
)
