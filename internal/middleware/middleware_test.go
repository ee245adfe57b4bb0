package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticketing-core/internal/config"
)

const testSecret = "test-secret"

func signed(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func runJWT(t *testing.T, header string) (*httptest.ResponseRecorder, echo.Context, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	called := false
	h := JWTAuth(testSecret)(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusNoContent)
	})
	require.NoError(t, h(c))
	return rec, c, called
}

func TestJWTAuthSetsIdentity(t *testing.T) {
	tok := signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"sub": "u1", "tenant_id": "t1", "role": "OPERATOR", "typ": "access",
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	rec, c, called := runJWT(t, "Bearer "+tok)
	assert.True(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "u1", UserID(c))
	assert.Equal(t, "t1", TenantID(c))
	assert.Equal(t, "OPERATOR", c.Get(CtxRole))
}

func TestJWTAuthRejects(t *testing.T) {
	future := time.Now().Add(time.Minute).Unix()
	cases := map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc",
		"garbage":        "Bearer not-a-token",
		"wrong secret": "Bearer " + signed(t, jwt.SigningMethodHS256, []byte("other"),
			jwt.MapClaims{"sub": "u1", "tenant_id": "t1", "exp": future}),
		"expired": "Bearer " + signed(t, jwt.SigningMethodHS256, []byte(testSecret),
			jwt.MapClaims{"sub": "u1", "tenant_id": "t1", "exp": time.Now().Add(-time.Minute).Unix()}),
		"no tenant": "Bearer " + signed(t, jwt.SigningMethodHS256, []byte(testSecret),
			jwt.MapClaims{"sub": "u1", "exp": future}),
		"refresh token": "Bearer " + signed(t, jwt.SigningMethodHS256, []byte(testSecret),
			jwt.MapClaims{"sub": "u1", "tenant_id": "t1", "typ": "refresh", "exp": future}),
		"other alg": "Bearer " + signed(t, jwt.SigningMethodHS512, []byte(testSecret),
			jwt.MapClaims{"sub": "u1", "tenant_id": "t1", "exp": future}),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			rec, _, called := runJWT(t, header)
			assert.False(t, called)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	for role, want := range map[string]int{"OPERATOR": http.StatusNoContent, "CUSTOMER": http.StatusForbidden, "": http.StatusForbidden} {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
		if role != "" {
			c.Set(CtxRole, role)
		}
		h := RequireRole("OPERATOR")(func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
		require.NoError(t, h(c))
		assert.Equal(t, want, rec.Code, role)
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/s1/holds", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/sessions/:id/holds")
	c.Set(CtxTenantID, "t1")
	c.Set(CtxUserID, "u1")

	cfg := config.RateLimitConfig{Prefix: "rl"}
	assert.Equal(t, "rl:tenant:t1:user:u1:route:POST /v1/sessions/:id/holds", buildRateKey(cfg, c))
	cfg.KeyStrategy = "tenant"
	assert.Equal(t, "rl:tenant:t1", buildRateKey(cfg, c))
	cfg.KeyStrategy = "ip"
	assert.Equal(t, "rl:ip:10.0.0.1", buildRateKey(cfg, c))
}

func TestCacheKeyScopedByTenant(t *testing.T) {
	e := echo.New()
	mk := func(tenant string) echo.Context {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/seats", nil), httptest.NewRecorder())
		c.SetPath("/v1/sessions/:id/seats")
		c.SetParamNames("id")
		c.SetParamValues("s1")
		c.Set(CtxTenantID, tenant)
		return c
	}
	cfg := config.CacheConfig{Prefix: "cache"}
	assert.NotEqual(t, cacheKey(cfg, mk("t1")), cacheKey(cfg, mk("t2")))
	assert.Equal(t, cacheKey(cfg, mk("t1")), cacheKey(cfg, mk("t1")))
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"ok":true}`))
	require.NoError(t, err)
	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, `{"ok":true}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 1})
	assert.False(t, ok)
}

func TestDisabledMiddlewarePassesThrough(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	h := NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil)(
		NewRedisCache(config.CacheConfig{Enabled: true}, nil)(func(c echo.Context) error {
			return c.String(http.StatusOK, "ok")
		}))
	require.NoError(t, h(c))
	assert.Equal(t, "ok", rec.Body.String())
}
