package req

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livechat/internal/pkg/errs"
)

type sample struct {
	Text string `json:"text"`
}

func newRequest(body, contentType string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	return r
}

func TestBindJSON(t *testing.T) {
	var dst sample
	err := BindJSON(httptest.NewRecorder(), newRequest(`{"text":"hi"}`, "application/json; charset=utf-8"), &dst)
	require.Nil(t, err)
	assert.Equal(t, "hi", dst.Text)
}

func TestBindJSONErrors(t *testing.T) {
	cases := []struct {
		name        string
		body        string
		contentType string
		code        int
	}{
		{"wrong content type", `{"text":"hi"}`, "text/plain", errs.ErrUnsupportedMediaType},
		{"malformed", `{"text":`, "application/json", errs.ErrInvalidJSONFormat},
		{"unknown field", `{"other":1}`, "application/json", errs.ErrInvalidJSONFormat},
		{"trailing value", `{"text":"a"} {"text":"b"}`, "application/json", errs.ErrExtraContentInBody},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var dst sample
			err := BindJSON(httptest.NewRecorder(), newRequest(tc.body, tc.contentType), &dst)
			require.NotNil(t, err)
			assert.Equal(t, tc.code, err.Code)
		})
	}
}
