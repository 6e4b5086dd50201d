package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidVideoID means no supported URL shape or bare id matched the input.
	ErrInvalidVideoID = errors.New("could not extract video ID")

	// ErrTransient marks provider failures worth another attempt (network, rate limit, listing).
	ErrTransient = errors.New("transient provider failure")

	// ErrNoTracks is returned when the provider lists zero caption tracks.
	ErrNoTracks = errors.New("no caption tracks")

	// ErrTranslationUnavailable is permanent for a given track.
	ErrTranslationUnavailable = errors.New("translation not available")

	// ErrNoTranscript is the terminal pipeline failure.
	ErrNoTranscript = errors.New("no transcript available")

	ErrSessionExpired = errors.New("cursor expired or invalid, start a new search")
	ErrInvalidCursor  = errors.New("invalid cursor format")
	ErrQueryOrCursor  = errors.New("exactly one of 'query' or 'cursor' is required")
	ErrSearchFailed   = errors.New("search failed")

	ErrConversionTimeout = errors.New("download timeout, video may be too long or network is slow")
	ErrConversionFailed  = errors.New("conversion failed")
)

// NoTranscriptError carries the last underlying failure after all attempts are spent.
type NoTranscriptError struct {
	VideoID  string
	Attempts int
	Err      error
}

func (e *NoTranscriptError) Error() string {
	return fmt.Sprintf("%s for %s after %d attempts: %v", ErrNoTranscript, e.VideoID, e.Attempts, e.Err)
}

func (e *NoTranscriptError) Unwrap() error { return e.Err }

func (e *NoTranscriptError) Is(target error) bool { return target == ErrNoTranscript }

// Transient wraps err so errors.Is(err, ErrTransient) holds.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
