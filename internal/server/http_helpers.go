package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"traitors-table/internal/store"

	"github.com/gin-gonic/gin"
)

func writeError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// storeErrorStatus maps store failures onto HTTP statuses.
func storeErrorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidPath):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrClosed), errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func encodeFrame(resp store.Response) ([]byte, error) {
	return json.Marshal(resp)
}

func valueFrame(snap store.Snapshot) store.Response {
	return store.Response{Type: store.TypeValue, Path: snap.Path, Value: snap.Value, Version: snap.Version}
}
