package server

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSendJsonResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	SendJsonResponse(rec, map[string]int{"free_frames": 3})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"free_frames": 3}`, rec.Body.String())
}

func TestSendJsonResponse_InvalidData(t *testing.T) {
	rec := httptest.NewRecorder()
	SendJsonResponse(rec, math.Inf(1))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSendTextResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	SendTextResponse(rec, "frame 0: libre\n")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Equal(t, "frame 0: libre\n", rec.Body.String())
}
