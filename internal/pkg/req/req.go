/*
Package req provides helper functions for HTTP request parsing and data binding.

It decodes JSON bodies strictly (known fields only, a single value, bounded size)
and reports failures as application errors.
*/
package req

import (
	"encoding/json"
	"net/http"
	"strings"

	"livechat/internal/pkg/errs"
)

// MaxJSONBodyBytes bounds the size of JSON request bodies.
const MaxJSONBodyBytes int64 = 64 << 10 // 64 KB

// BindJSON attempts to bind the JSON data from the HTTP request body to the destination struct dst.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return errs.Wrap(errs.ErrInvalidJSONFormat, err)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}
