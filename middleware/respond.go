package middleware

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	jobAuth "github.com/MrEthical07/jobAuth"
)

// ErrorBody is the JSON error envelope: {"error":{"code":"...","message":"..."}}.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError renders err with the status of its kind. Unclassified errors are reported
// as a generic internal error so store details never reach the client. Locked accounts
// with a known expiry get a Retry-After header in whole seconds.
func WriteError(w http.ResponseWriter, err error) {
	kind := jobAuth.KindOf(err)
	msg := "internal error"
	var ae *jobAuth.AuthError
	if errors.As(err, &ae) {
		msg = ae.Message
		if ae.RetryAfter > 0 {
			secs := int64(math.Ceil(ae.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
		}
	}
	writeJSONError(w, kind.HTTPStatus(), kind.String(), msg)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

// WriteJSON encodes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
