package jwt

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken(&Payload{ID: "u1", Nickname: "Sara", Avatar: "a.png", UserType: "registered"}, testSecret, time.Hour)
	require.NoError(t, err)

	payload, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "u1", payload.ID)
	assert.Equal(t, "Sara", payload.Nickname)
	assert.Equal(t, "a.png", payload.Avatar)
	assert.Equal(t, TokenIssuer, payload.Issuer)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken(&Payload{ID: "u1"}, testSecret, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(token, "other")
	assert.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, err := GenerateToken(&Payload{ID: "u1"}, testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, testSecret)
	assert.Error(t, err)
}

func TestParseTokenRequiresID(t *testing.T) {
	token, err := GenerateToken(&Payload{Nickname: "nobody"}, testSecret, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(token, testSecret)
	assert.Error(t, err)
}

func TestMiddlewareReadsHeaderAndQuery(t *testing.T) {
	token, err := GenerateToken(&Payload{ID: "u7"}, testSecret, time.Hour)
	require.NoError(t, err)

	var got *Payload
	h := IdentityExtractorMiddleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetPayloadFromContext(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, got)
	assert.Equal(t, "u7", got.ID)

	got = nil
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil))
	require.NotNil(t, got)
	assert.Equal(t, "u7", got.ID)

	got = nil
	req = httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Token "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Nil(t, got)
}

func TestRequireIdentity(t *testing.T) {
	h := RequireIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithPayload(req.Context(), &Payload{ID: "u1"}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
