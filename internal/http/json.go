package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/target/mmk-investigations/internal/errors"
)

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, ErrorParams{
				Code:    http.StatusRequestEntityTooLarge,
				ErrCode: "body_too_large",
				Err:     fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit),
			})
			return false
		}
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}

	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
	// Reason and Field are optional machine-readable details.
	Reason string
	Field  string
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
	Field   string `json:"field,omitempty"`
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, ErrorBody{Error: p.ErrCode, Message: p.Err.Error(), Reason: p.Reason, Field: p.Field})
}

// WriteServiceError renders an error returned by the service layer, deriving the status
// from its AppError code. Errors without a code are reported as internal.
func WriteServiceError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	status := StatusForCode(code)
	msg := err
	if status == http.StatusInternalServerError {
		msg = errors.New("internal error")
	}
	if code == "" {
		code = apperrors.ErrCodeInternal
	}
	WriteError(w, ErrorParams{
		Code:    status,
		ErrCode: string(code),
		Err:     msg,
		Reason:  apperrors.GetReason(err),
		Field:   apperrors.GetField(err),
	})
}

// StatusForCode maps an AppError code to an HTTP status.
func StatusForCode(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict:
		return http.StatusConflict
	case apperrors.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrCodeCanceled:
		// Client closed request.
		return 499
	default:
		return http.StatusInternalServerError
	}
}
