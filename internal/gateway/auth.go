package gateway

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/agentdesk/internal/auth"
	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/domain"
)

// Auth modes.
const (
	AuthModeToken    = "token"
	AuthModePassword = "password"
	AuthModeJWT      = "jwt"
)

// localUser is the identity of callers when no bearer identity is configured.
const localUser = "local"

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	OK       bool           `json:"ok"`
	Method   string         `json:"method,omitempty"` // "token" | "password" | "jwt"
	Reason   string         `json:"reason,omitempty"`
	Identity *auth.Identity `json:"identity,omitempty"`
}

// ResolvedAuth holds the resolved auth configuration for the gateway.
type ResolvedAuth struct {
	Mode     string
	Token    string
	Password string
}

// ResolveAuth resolves authentication credentials from config and environment.
// Precedence: config value → env variable → empty.
func ResolveAuth(cfg config.GatewayAuth) ResolvedAuth {
	a := ResolvedAuth{Mode: cfg.Mode}

	a.Token = cfg.Token
	if a.Token == "" {
		a.Token = os.Getenv("AGENTDESK_GATEWAY_TOKEN")
	}

	a.Password = cfg.Password
	if a.Password == "" {
		a.Password = os.Getenv("AGENTDESK_GATEWAY_PASSWORD")
	}

	if a.Mode == "" {
		if a.Password != "" {
			a.Mode = AuthModePassword
		} else {
			a.Mode = AuthModeToken
		}
	}
	return a
}

// Authorize checks the provided ConnectAuth against the resolved server
// auth. In jwt mode the token is verified with v and the result carries
// the caller's identity.
func Authorize(serverAuth ResolvedAuth, clientAuth *ConnectAuth, v *auth.Verifier) AuthResult {
	if clientAuth == nil {
		return AuthResult{OK: false, Reason: "no credentials provided"}
	}

	switch serverAuth.Mode {
	case AuthModeToken:
		if serverAuth.Token == "" {
			return AuthResult{OK: false, Reason: "server token not configured"}
		}
		if clientAuth.Token == "" {
			return AuthResult{OK: false, Reason: "token required"}
		}
		if !safeEqual(clientAuth.Token, serverAuth.Token) {
			return AuthResult{OK: false, Reason: "token_mismatch"}
		}
		return AuthResult{OK: true, Method: AuthModeToken}

	case AuthModePassword:
		if serverAuth.Password == "" {
			return AuthResult{OK: false, Reason: "server password not configured"}
		}
		if clientAuth.Password == "" {
			return AuthResult{OK: false, Reason: "password required"}
		}
		if !safeEqual(clientAuth.Password, serverAuth.Password) {
			return AuthResult{OK: false, Reason: "password_mismatch"}
		}
		return AuthResult{OK: true, Method: AuthModePassword}

	case AuthModeJWT:
		if v == nil || !v.Enabled() {
			return AuthResult{OK: false, Reason: "auth.jwtSecret not configured"}
		}
		id, err := v.Parse(clientAuth.Token)
		if err != nil {
			return AuthResult{OK: false, Reason: err.Error()}
		}
		return AuthResult{OK: true, Method: AuthModeJWT, Identity: &id}

	default:
		return AuthResult{OK: false, Reason: "unknown auth mode: " + serverAuth.Mode}
	}
}

// safeEqual performs a constant-time string comparison.
// It avoids early-return on length mismatch to prevent leaking secret length via timing.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}

type identityKey struct{}

// identityFrom returns the caller identity stored by withIdentity.
func identityFrom(ctx context.Context) auth.Identity {
	if id, ok := ctx.Value(identityKey{}).(auth.Identity); ok {
		return id
	}
	return auth.Identity{UserID: localUser}
}

// orgFrom returns the organization the caller's agents are listed under.
func (s *Server) orgFrom(ctx context.Context) domain.Organization {
	return s.verifier.ResolveOrg(identityFrom(ctx))
}

// withIdentity guards an /api route. With a JWT secret configured the
// bearer token must be a valid identity token. Otherwise, in token mode
// with a configured token, the bearer must equal it and the caller is the
// local user; with neither, every caller is the local user.
func (s *Server) withIdentity(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authLimiter.allow(r.RemoteAddr) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many failed auth attempts")
			return
		}
		id, err := s.identify(r)
		if err != nil {
			s.authLimiter.recordFailure(r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

func (s *Server) identify(r *http.Request) (auth.Identity, error) {
	if s.verifier.Enabled() {
		return s.verifier.FromRequest(r)
	}
	if s.auth.Mode == AuthModeToken && s.auth.Token != "" {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || !safeEqual(strings.TrimSpace(token), s.auth.Token) {
			return auth.Identity{}, auth.ErrNoIdentity
		}
	}
	return auth.Identity{UserID: localUser}, nil
}

// authRateLimiter tracks failed auth attempts per IP to prevent brute-force attacks.
type authRateLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
}

const (
	authRateWindow   = 5 * time.Minute
	authRateMaxFails = 10
	authRateMaxIPs   = 10000 // max tracked IPs to prevent memory exhaustion
)

func newAuthRateLimiter() *authRateLimiter {
	return &authRateLimiter{failures: make(map[string][]time.Time)}
}

// run prunes stale entries every minute until ctx is done.
func (l *authRateLimiter) run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.prune(time.Now())
		}
	}
}

func (l *authRateLimiter) prune(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := now.Add(-authRateWindow)
	for ip, times := range l.failures {
		filtered := recentSince(times, cutoff)
		if len(filtered) == 0 {
			delete(l.failures, ip)
		} else {
			l.failures[ip] = filtered
		}
	}
}

func recentSince(times []time.Time, cutoff time.Time) []time.Time {
	filtered := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

func hostOf(remoteAddr string) string {
	host, _, _ := net.SplitHostPort(remoteAddr)
	if host == "" {
		return remoteAddr
	}
	return host
}

func (l *authRateLimiter) allow(remoteAddr string) bool {
	host := hostOf(remoteAddr)

	l.mu.Lock()
	defer l.mu.Unlock()

	filtered := recentSince(l.failures[host], time.Now().Add(-authRateWindow))
	if len(filtered) == 0 {
		delete(l.failures, host)
		return true
	}
	l.failures[host] = filtered
	return len(filtered) < authRateMaxFails
}

func (l *authRateLimiter) recordFailure(remoteAddr string) {
	host := hostOf(remoteAddr)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.failures[host]; !exists && len(l.failures) >= authRateMaxIPs {
		var oldestIP string
		var oldestTime time.Time
		for ip, times := range l.failures {
			if len(times) > 0 && (oldestIP == "" || times[0].Before(oldestTime)) {
				oldestIP = ip
				oldestTime = times[0]
			}
		}
		if oldestIP != "" {
			delete(l.failures, oldestIP)
		}
	}

	l.failures[host] = append(l.failures[host], time.Now())
}
