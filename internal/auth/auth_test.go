package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-auction/internal/logger"
	"ms-auction/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func protected(t *testing.T, roles ...models.Role) http.Handler {
	t.Helper()
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(UserID(r.Context())))
	})
	var h http.Handler = final
	if len(roles) > 0 {
		h = RequireRole(roles...)(h)
	}
	return Middleware(NewHS256Verifier(secret), logger.NewWriterLogger("test", io.Discard))(h)
}

func request(t *testing.T, token string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	token, err := MintHS256(secret, Claims{Subject: "user-1", Roles: []string{"USER"}}, time.Minute)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	protected(t).ServeHTTP(rec, request(t, token))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", rec.Body.String())
}

func TestMiddlewareRejects(t *testing.T) {
	expired, err := MintHS256(secret, Claims{Subject: "user-1"}, -time.Minute)
	require.NoError(t, err)
	wrongKey, err := MintHS256("other", Claims{Subject: "user-1"}, time.Minute)
	require.NoError(t, err)
	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(time.Minute).Unix()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"missing":   "",
		"expired":   expired,
		"wrong key": wrongKey,
		"alg none":  noneAlg,
		"garbage":   "not.a.jwt",
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			protected(t).ServeHTTP(rec, request(t, token))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), `"code":"Unauthorized"`)
		})
	}
}

func TestRequireRole(t *testing.T) {
	agent, err := MintHS256(secret, Claims{Subject: "agent-1", Roles: []string{"AGENT"}}, time.Minute)
	require.NoError(t, err)
	user, err := MintHS256(secret, Claims{Subject: "user-1", Roles: []string{"USER"}}, time.Minute)
	require.NoError(t, err)

	h := protected(t, models.RoleAgent, models.RoleAdmin)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request(t, agent))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, request(t, user))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"Forbidden"`)
}

func TestClaimsRole(t *testing.T) {
	assert.Equal(t, models.RoleStandard, (&Claims{}).Role())
	assert.Equal(t, models.RoleAdmin, (&Claims{Roles: []string{"offline_access", "AGENT", "ADMIN"}}).Role())
	assert.Equal(t, models.RoleSuperAdmin, (&Claims{Roles: []string{"SUPER_ADMIN", "AGENT"}}).Role())
}

func TestRealmAccessRoles(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":          "admin-1",
		"exp":          time.Now().Add(time.Minute).Unix(),
		"realm_access": map[string]any{"roles": []string{"ADMIN"}},
	})
	raw, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	claims, err := NewHS256Verifier(secret).Verify(t.Context(), raw)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, claims.Role())
}
