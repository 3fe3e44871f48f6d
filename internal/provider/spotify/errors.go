package spotify

import (
	"errors"
	"fmt"
)

// ErrInvalidReference is returned when no playlist ID can be found in a URL.
var ErrInvalidReference = errors.New("could not extract a playlist ID from the URL")

// AuthError reports a failed client-credentials exchange.
type AuthError struct {
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("spotify token request returned %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("spotify token request failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// UpstreamError reports a failed page of the playlist tracks listing.
type UpstreamError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("spotify tracks page %s returned %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("spotify tracks page %s failed: %v", e.URL, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
