/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/ssgreg/logf"
)

// ContentTypeAppJSON represents MIME media type for JSON.
const ContentTypeAppJSON = "application/json"

// Error represents the error payload of a rejected request.
type Error struct {
	Domain  string `json:"domain"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// NewError creates a new Error with specified params.
func NewError(domain, code, message string) *Error {
	return &Error{Domain: domain, Code: code, Message: message}
}

type errorResponseData struct {
	Err *Error `json:"error"`
}

// RespondError sets the HTTP status code in the response and writes the error
// in the body in JSON format.
func RespondError(rw http.ResponseWriter, statusCode int, apiErr *Error, logger *logf.Logger) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(errorResponseData{Err: apiErr}); err != nil {
		if logger != nil {
			logger.Error("error while marshaling json for response body", logf.Error(err))
		}
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	if rw.Header().Get("Content-Type") == "" {
		rw.Header().Set("Content-Type", ContentTypeAppJSON)
	}
	rw.WriteHeader(statusCode)
	if _, err := rw.Write(buf.Bytes()); err != nil {
		if logger != nil {
			logger.Error("error while writing response body", logf.Error(err))
		}
	}
}

// RespondInternalError writes a generic internal error response.
func RespondInternalError(rw http.ResponseWriter, errDomain string, logger *logf.Logger) {
	RespondError(rw, http.StatusInternalServerError, NewError(errDomain, "internalError", "Internal error."), logger)
}
