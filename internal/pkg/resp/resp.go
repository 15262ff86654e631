/*
Package resp writes the JSON envelope every HTTP endpoint answers with.

The envelope is {code, message, data}. Code 0 is success; any other code is an
errs business code, and the HTTP status comes from the matching CustomError.
*/
package resp

import (
	"encoding/json"
	"net/http"

	"livechat/internal/pkg/errs"
	"livechat/internal/pkg/logx"
)

// CodeOK is the envelope code of a successful response.
const CodeOK = 0

// Envelope is the body of every API response.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Write marshals env and sends it with the given HTTP status.
func Write(w http.ResponseWriter, status int, env Envelope) {
	body, err := json.Marshal(env)
	if err != nil {
		logx.Error(err, "Encoding response envelope failed", "http_status", status, "code", env.Code)
		http.Error(w, "Error encoding JSON response", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "no-store")

	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// RespondSuccess sends data with HTTP 200 and code 0.
func RespondSuccess(w http.ResponseWriter, r *http.Request, data any) {
	Write(w, http.StatusOK, Envelope{Code: CodeOK, Message: "success", Data: data})
}

// RespondStatus sends a successful envelope with a non-200 HTTP status, as the
// health endpoint does when a dependency is degraded.
func RespondStatus(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	Write(w, status, Envelope{Code: CodeOK, Message: message, Data: data})
}

// RespondError sends customErr. Server-side causes are logged, never sent.
func RespondError(w http.ResponseWriter, r *http.Request, customErr *errs.CustomError) {
	RespondErrorData(w, r, customErr, nil)
}

// RespondErrorData sends customErr together with a payload describing what
// did succeed, e.g. the id of a message whose follow-up write failed.
func RespondErrorData(w http.ResponseWriter, r *http.Request, customErr *errs.CustomError, data any) {
	if customErr == nil {
		customErr = errs.NewError(errs.ErrUnknown)
	}

	if customErr.Cause != nil && customErr.Status >= http.StatusInternalServerError {
		logx.Error(customErr.Cause, "Request failed", "code", customErr.Code, "path", r.URL.Path)
	}

	Write(w, customErr.Status, Envelope{Code: customErr.Code, Message: customErr.Message, Data: data})
}
