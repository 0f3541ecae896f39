package middleware

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/doodlesbykumbi/clinicguard/pkg/identity"
)

// Claims are the identity token claims. Subject is the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ProxyTrust reports whether an address belongs to a trusted proxy.
type ProxyTrust interface {
	IsTrustedProxy(ip string) bool
}

// JWTAuthenticator is middleware that validates HS256 identity tokens and
// stores the caller's identity in the request context.
type JWTAuthenticator struct {
	secret  []byte
	proxies ProxyTrust
}

// NewJWTAuthenticator creates a new JWT authenticator middleware.
func NewJWTAuthenticator(secret []byte, proxies ProxyTrust) *JWTAuthenticator {
	return &JWTAuthenticator{secret: secret, proxies: proxies}
}

// Sign issues a token for claims. Used by tooling and tests.
func (j *JWTAuthenticator) Sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// Parse validates tokenString and returns its claims.
func (j *JWTAuthenticator) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return j.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.Role == "" {
		return nil, errors.New("token is missing sub or role")
	}
	return claims, nil
}

// Middleware returns an HTTP middleware that validates identity tokens.
func (j *JWTAuthenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if len(authHeader) == 0 {
			unauthorized(w, "Authorization missing")
			return
		}

		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || tokenString == "" {
			unauthorized(w, "Malformed authorization header")
			return
		}

		claims, err := j.Parse(tokenString)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				unauthorized(w, "Token expired")
				return
			}
			unauthorized(w, "Invalid token")
			return
		}

		id := identity.New(claims.Subject, claims.Role).WithRemoteIP(ClientIP(r, j.proxies))
		if claims.IssuedAt != nil {
			id.IssuedAt = claims.IssuedAt.Time
		}
		if claims.ExpiresAt != nil {
			id.ExpiresAt = claims.ExpiresAt.Time
		}

		next.ServeHTTP(w, r.WithContext(identity.Set(r.Context(), id)))
	})
}

// ClientIP returns the caller's address. X-Forwarded-For is only believed
// when the direct peer is a trusted proxy; the rightmost untrusted hop wins.
func ClientIP(r *http.Request, proxies ProxyTrust) net.IP {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer := net.ParseIP(host)

	if proxies == nil || peer == nil || !proxies.IsTrustedProxy(peer.String()) {
		return peer
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		ip := net.ParseIP(strings.TrimSpace(hops[i]))
		if ip == nil {
			continue
		}
		if !proxies.IsTrustedProxy(ip.String()) {
			return ip
		}
		peer = ip
	}
	return peer
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(msg))
}
