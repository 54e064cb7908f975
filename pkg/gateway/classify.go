package gateway

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/MohammadTaha536/mmd536/pkg/core"
)

// classify maps a remote failure onto the canonical core error kinds.
// Rate-limit and context-overflow signals are the only two the rest of
// the system distinguishes; everything else is transport or unknown.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		msg := strings.TrimSpace(apiErr.Message)
		switch {
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED":
			return core.NewRateLimitError(msg, 60)
		case apiErr.Code == http.StatusBadRequest && mentionsTokenLimit(msg):
			return core.NewContextTooLargeError(msg)
		default:
			return core.NewUnknownError(msg)
		}
	}

	// Anything that never produced a remote status is a connection-level
	// failure: DNS, timeouts, resets, cancellation.
	return &core.TransportError{Op: op, Err: err}
}

func mentionsTokenLimit(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "token") &&
		(strings.Contains(lower, "exceed") || strings.Contains(lower, "maximum") || strings.Contains(lower, "limit"))
}
