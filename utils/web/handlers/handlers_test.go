package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandshakeHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HandshakeHandler("Kernel en funcionamiento")(rec, httptest.NewRequest(http.MethodGet, "/kernel", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `"Kernel en funcionamiento"`, rec.Body.String())
}
