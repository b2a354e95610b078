package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/agentdesk/internal/auth"
	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/logging"
)

func TestResolveAuth_EnvFillsMissingSecrets(t *testing.T) {
	t.Setenv("AGENTDESK_GATEWAY_TOKEN", "env-token")
	t.Setenv("AGENTDESK_GATEWAY_PASSWORD", "env-pass")

	a := ResolveAuth(config.GatewayAuth{Mode: AuthModeToken, Token: "from-file"})
	assert.Equal(t, "from-file", a.Token)
	assert.Equal(t, "env-pass", a.Password)

	a = ResolveAuth(config.GatewayAuth{})
	assert.Equal(t, AuthModePassword, a.Mode)
	assert.Equal(t, "env-token", a.Token)
}

func TestAuthorize_SharedSecrets(t *testing.T) {
	tokenMode := ResolvedAuth{Mode: AuthModeToken, Token: "dash-token"}
	passwordMode := ResolvedAuth{Mode: AuthModePassword, Password: "dash-pass"}

	tests := []struct {
		name   string
		server ResolvedAuth
		client *ConnectAuth
		ok     bool
		reason string
	}{
		{"token ok", tokenMode, &ConnectAuth{Token: "dash-token"}, true, ""},
		{"token wrong", tokenMode, &ConnectAuth{Token: "dash-tokeN"}, false, "token_mismatch"},
		{"password given in token mode", tokenMode, &ConnectAuth{Password: "dash-token"}, false, "token required"},
		{"password ok", passwordMode, &ConnectAuth{Password: "dash-pass"}, true, ""},
		{"password wrong", passwordMode, &ConnectAuth{Password: "nope"}, false, "password_mismatch"},
		{"no credentials", tokenMode, nil, false, "no credentials provided"},
		{"unconfigured server", ResolvedAuth{Mode: AuthModeToken}, &ConnectAuth{Token: "x"}, false, "server token not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Authorize(tt.server, tt.client, nil)
			assert.Equal(t, tt.ok, res.OK)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Nil(t, res.Identity)
		})
	}
}

func testVerifier() *auth.Verifier {
	return auth.NewVerifier(config.AuthConfig{JWTSecret: "jwt-secret"})
}

func TestAuthorize_JWTCarriesIdentityAndOrg(t *testing.T) {
	v := testVerifier()
	token, err := v.Issue(auth.Identity{
		UserID: "user-1",
		Orgs:   []auth.OrgClaim{{ID: "org-1", Name: "Acme"}},
	}, time.Hour)
	require.NoError(t, err)

	result := Authorize(ResolvedAuth{Mode: AuthModeJWT}, &ConnectAuth{Token: token}, v)
	require.True(t, result.OK, result.Reason)
	assert.Equal(t, AuthModeJWT, result.Method)
	require.NotNil(t, result.Identity)
	assert.Equal(t, "user-1", result.Identity.UserID)
	assert.Equal(t, "Acme", v.ResolveOrg(*result.Identity).Key())
}

func TestAuthorize_JWTRejected(t *testing.T) {
	other := auth.NewVerifier(config.AuthConfig{JWTSecret: "another-secret"})
	forged, err := other.Issue(auth.Identity{UserID: "mallory"}, time.Hour)
	require.NoError(t, err)

	for name, token := range map[string]string{"garbage": "garbage", "wrong key": forged} {
		result := Authorize(ResolvedAuth{Mode: AuthModeJWT}, &ConnectAuth{Token: token}, testVerifier())
		assert.False(t, result.OK, name)
		assert.Nil(t, result.Identity, name)
	}

	result := Authorize(ResolvedAuth{Mode: AuthModeJWT}, &ConnectAuth{Token: forged}, auth.NewVerifier(config.AuthConfig{}))
	assert.False(t, result.OK)
	assert.Contains(t, result.Reason, "jwtSecret")
}

func TestAuthRateLimiter_WindowPerHost(t *testing.T) {
	limiter := newAuthRateLimiter()
	for range authRateMaxFails {
		limiter.recordFailure("192.168.1.1:12345")
	}
	assert.False(t, limiter.allow("192.168.1.1:999"))
	assert.True(t, limiter.allow("192.168.1.2:12345"))

	limiter.prune(time.Now().Add(authRateWindow + time.Second))
	assert.True(t, limiter.allow("192.168.1.1:12345"))
}

func TestCheckWebSocketOrigin(t *testing.T) {
	tests := []struct {
		allowed []string
		origin  string
		want    bool
	}{
		{nil, "", true},
		{nil, "http://evil.com", false},
		{[]string{"*"}, "http://anything.com", true},
		{[]string{"https://dash.acme.com"}, "https://dash.acme.com", true},
		{[]string{"https://dash.acme.com"}, "https://dash.globex.com", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, checkWebSocketOrigin(tt.allowed)(req), "%v %q", tt.allowed, tt.origin)
	}
}

// --- withIdentity ---

func identityServer(cfg config.Config) *Server {
	return New(cfg, logging.New(nil, "silent"))
}

func whoAmI(s *Server) http.Handler {
	return s.withIdentity(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"user": identityFrom(r.Context()).UserID,
			"org":  s.orgFrom(r.Context()).Key(),
		})
	})
}

func TestWithIdentity_LocalUserWithoutCredentials(t *testing.T) {
	cfg := config.Defaults()
	cfg.Gateway.Auth = config.GatewayAuth{Mode: AuthModePassword, Password: "pw"}
	h := whoAmI(identityServer(cfg))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/agents", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"user":"local"`)
}

func TestWithIdentity_GatewayToken(t *testing.T) {
	cfg := config.Defaults()
	cfg.Gateway.Auth = config.GatewayAuth{Mode: AuthModeToken, Token: "tok"}
	h := whoAmI(identityServer(cfg))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/agents", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestWithIdentity_JWTScopesOrganization(t *testing.T) {
	cfg := config.Defaults()
	cfg.Auth.JWTSecret = "jwt-secret"
	s := identityServer(cfg)
	h := whoAmI(s)

	tests := []struct {
		id      auth.Identity
		wantOrg string
	}{
		{auth.Identity{UserID: "user-9"}, auth.DefaultSingleUserOrg},
		{auth.Identity{UserID: "user-3", Orgs: []auth.OrgClaim{{ID: "o-2", Name: "globex"}}}, "globex"},
	}
	for _, tt := range tests {
		token, err := s.verifier.Issue(tt.id, time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"user":"`+tt.id.UserID+`","org":"`+tt.wantOrg+`"}`, rr.Body.String())
	}
}

func TestWithIdentity_RateLimitsFailures(t *testing.T) {
	cfg := config.Defaults()
	cfg.Gateway.Auth = config.GatewayAuth{Mode: AuthModeToken, Token: "tok"}
	h := whoAmI(identityServer(cfg))

	for range authRateMaxFails {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/agents", nil))
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}
