package ytserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/anatolykoptev/go_ytsvc/internal/engine"
)

// errMissingParam marks a request without a required parameter.
var errMissingParam = errors.New("missing required parameter")

func missingParam(name string) error {
	return fmt.Errorf("%w: %s", errMissingParam, name)
}

// classify maps an error to an HTTP status and a client-safe message.
// Raw provider errors never reach the client.
func classify(err error) (int, string) {
	var nte *engine.NoTranscriptError
	switch {
	case errors.Is(err, errMissingParam),
		errors.Is(err, engine.ErrInvalidVideoID),
		errors.Is(err, engine.ErrInvalidCursor),
		errors.Is(err, engine.ErrQueryOrCursor):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &nte):
		return http.StatusNotFound, fmt.Sprintf("could not retrieve transcript for %s after %d attempts", nte.VideoID, nte.Attempts)
	case errors.Is(err, engine.ErrNoTranscript):
		return http.StatusNotFound, engine.ErrNoTranscript.Error()
	case errors.Is(err, engine.ErrSessionExpired):
		return http.StatusGone, engine.ErrSessionExpired.Error()
	case errors.Is(err, engine.ErrSearchFailed):
		return http.StatusBadGateway, engine.ErrSearchFailed.Error()
	case errors.Is(err, engine.ErrConversionTimeout):
		return http.StatusGatewayTimeout, engine.ErrConversionTimeout.Error()
	case errors.Is(err, engine.ErrConversionFailed):
		return http.StatusBadGateway, engine.ErrConversionFailed.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "request cancelled"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// publicError is classify's message as an error, for MCP tool results.
func publicError(err error) error {
	_, msg := classify(err)
	return errors.New(msg)
}
