package spotifyapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/playback-history/collector/errkind"
)

// surfaceError turns a non-2xx Spotify response into an *errkind.Error,
// extracting the JSON error body's message field when present so the
// surfaced message is never just a flattened "tool execution failed".
func surfaceError(resp *http.Response, kind errkind.Kind) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	message := resp.Status
	var parsed spotifyErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
	}

	return errkind.New(kind, message)
}

func kindForStatus(status int) errkind.Kind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return errkind.AuthExpired
	case status == http.StatusTooManyRequests:
		return errkind.RateLimited
	case status >= 500:
		return errkind.TransientUpstream
	default:
		return errkind.Internal
	}
}

func wrapTransport(err error) error {
	return errkind.Wrap(errkind.TransientUpstream, "contacting Spotify", err)
}
