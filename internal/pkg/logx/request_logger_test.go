package logx

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnonymizeIP(t *testing.T) {
	cases := map[string]string{
		"203.0.113.42:5555":   "203.0.113.0",
		"127.0.0.1:8080":      "127.0.0.1",
		"[2001:db8::1]:443":   "2001:db8::",
		"not-an-ip":           "unknown_ip",
		"198.51.100.7":        "198.51.100.0",
	}

	for in, want := range cases {
		assert.Equal(t, want, anonymizeIP(in), in)
	}
}

func TestRequestLoggerHidesWebSocketToken(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, zerolog.InfoLevel)

	h := RequestLogger()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token=secret-value", nil))

	require.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotContains(t, buf.String(), "secret-value")
	assert.Contains(t, buf.String(), `"request_uri":"/ws"`)
	assert.Contains(t, buf.String(), `"status":418`)
}

func TestRequestURIKeepsOrdinaryQueries(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/users?limit=5", nil)
	assert.Equal(t, "/api/users?limit=5", requestURI(r.URL))

	r = httptest.NewRequest(http.MethodGet, "/api/private/contacts?token=abc&x=1", nil)
	assert.Equal(t, "/api/private/contacts", requestURI(r.URL))
}
