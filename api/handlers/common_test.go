package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flowforge/flowforge/types"
)

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	cases := []struct {
		code types.ErrorCode
		want int
	}{
		{types.ErrInvalidRequest, http.StatusBadRequest},
		{types.ErrRenderInvalid, http.StatusBadRequest},
		{types.ErrInvalidGraph, http.StatusUnprocessableEntity},
		{types.ErrMissingRequiredField, http.StatusUnprocessableEntity},
		{types.ErrNotFound, http.StatusNotFound},
		{types.ErrInterventionNotFound, http.StatusNotFound},
		{types.ErrInterventionTerminal, http.StatusConflict},
		{types.ErrTimeout, http.StatusGatewayTimeout},
		{types.ErrUpstreamError, http.StatusBadGateway},
		{types.ErrInternalError, http.StatusInternalServerError},
		{types.ErrSandboxViolation, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, mapErrorCodeToHTTPStatus(tc.code), string(tc.code))
	}
}

func TestWriteError_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	err := types.NewError(types.ErrInvalidGraph, "graph has no nodes").WithNodeID("n1")

	WriteError(rec, err, zap.NewNop())

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_GRAPH", resp.Error.Code)
	assert.Equal(t, "n1", resp.Error.NodeID)
}

func TestWriteError_PresetStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	err := types.NewError(types.ErrRenderInvalid, "syntax gate failed").
		WithHTTPStatus(http.StatusBadRequest)

	WriteError(rec, err, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDecodeJSONBody_RejectsUnknownFields(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"bogus": 1}`))

	var dst struct {
		Name string `json:"name"`
	}
	err := DecodeJSONBody(rec, req, &dst, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResponseWriter_CapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK) // ignored

	assert.Equal(t, http.StatusTeapot, rw.StatusCode)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
