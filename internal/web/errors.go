package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"tunevault/internal/library"
	"tunevault/internal/pipeline"
	"tunevault/internal/provider/spotify"
	"tunevault/internal/synclock"
)

// ErrInvalidRequest wraps validation failures of request bodies and params.
var ErrInvalidRequest = errors.New("invalid request")

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		authErr     *spotify.AuthError
		upstreamErr *spotify.UpstreamError
		storageErr  *library.StorageError
	)

	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pipeline.ErrInvalidInput),
		errors.Is(err, spotify.ErrInvalidReference):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrWrongCode):
		return http.StatusUnauthorized
	case errors.Is(err, ErrTooManyAttempts):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrJobNotFound), errors.Is(err, library.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, synclock.ErrBusy):
		return http.StatusConflict
	case errors.As(err, &authErr), errors.As(err, &upstreamErr), errors.As(err, &storageErr):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError sends a flat {"error": "..."} body. A zero status is derived
// from the error.
func writeError(w http.ResponseWriter, status int, err error) {
	if status == 0 {
		status = statusFor(err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
