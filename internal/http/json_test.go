package httpx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/target/mmk-investigations/internal/errors"
)

func TestStatusForCode(t *testing.T) {
	tests := []struct {
		code apperrors.ErrorCode
		want int
	}{
		{apperrors.ErrCodeValidation, http.StatusBadRequest},
		{apperrors.ErrCodeNotFound, http.StatusNotFound},
		{apperrors.ErrCodeConflict, http.StatusConflict},
		{apperrors.ErrCodeUnavailable, http.StatusServiceUnavailable},
		{apperrors.ErrCodeTimeout, http.StatusGatewayTimeout},
		{apperrors.ErrCodeCanceled, 499},
		{apperrors.ErrCodeInternal, http.StatusInternalServerError},
		{"", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusForCode(tt.code), "code %q", tt.code)
	}
}

func TestWriteServiceError(t *testing.T) {
	t.Run("conflict keeps message and reason", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteServiceError(rec, apperrors.Conflictf("investigation %s already finished", "abc").WithReason("investigation_terminal"))

		require.Equal(t, http.StatusConflict, rec.Code)
		body := decodeErrorBody(t, rec.Body.Bytes())
		assert.Equal(t, "conflict", body.Error)
		assert.Contains(t, body.Message, "already finished")
		assert.Equal(t, "investigation_terminal", body.Reason)
	})

	t.Run("validation carries field", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteServiceError(rec, apperrors.ValidationField("target", "at least one target field is required"))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "target", decodeErrorBody(t, rec.Body.Bytes()).Field)
	})

	t.Run("internal hides details", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteServiceError(rec, errors.New("dial tcp 10.0.0.5:5432: password authentication failed"))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		body := decodeErrorBody(t, rec.Body.Bytes())
		assert.Equal(t, "internal", body.Error)
		assert.Equal(t, "internal error", body.Message)
	})
}

func TestDecodeJSONBodyTooLarge(t *testing.T) {
	h := LimitBody(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var v map[string]any
		if DecodeJSON(w, r, &v) {
			w.WriteHeader(http.StatusNoContent)
		}
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", stringsReader(`{"query":"this body is longer than sixteen bytes"}`)))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "body_too_large", decodeErrorBody(t, rec.Body.Bytes()).Error)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", stringsReader(`{"a":1}`)))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
