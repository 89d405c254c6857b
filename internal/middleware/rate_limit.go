package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/netip"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute       int               // per end user: client IP, forwarded IP or token subject
	CallerRequestsPerMinute int               // per calling service token; zero disables the ceiling
	IPConfig                *pkghttp.IPConfig // forwarded headers are honoured only from these proxies
}

type forwardedIPKey struct{}

func clientIPKey(config RateLimitConfig) httprate.KeyFunc {
	return func(r *http.Request) (string, error) {
		return pkghttp.ExtractClientIP(r, config.IPConfig), nil
	}
}

func limitExceeded(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteTooManyRequests(w, "Rate limit exceeded")
}

// RateLimitByUser limits authenticated requests per token subject and falls back
// to the client IP when no claims are present. Mount after AuthMiddleware.
func RateLimitByUser(config RateLimitConfig) func(next http.Handler) http.Handler {
	byIP := clientIPKey(config)
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if claims := auth.GetUserFromContext(r); claims != nil && claims.UserID() != "" {
				return "user:" + claims.UserID(), nil
			}
			return byIP(r)
		}),
		httprate.WithLimitHandler(limitExceeded),
	)
}

// RateLimitByCaller caps the total request rate of one calling service, keyed on
// the token subject. Mount after AuthMiddleware.
func RateLimitByCaller(config RateLimitConfig) func(next http.Handler) http.Handler {
	if config.CallerRequestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	byIP := clientIPKey(config)
	return httprate.Limit(
		config.CallerRequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if claims := auth.GetUserFromContext(r); claims != nil && claims.UserID() != "" {
				return "caller:" + claims.UserID(), nil
			}
			return byIP(r)
		}),
		httprate.WithLimitHandler(limitExceeded),
	)
}

// RateLimitByForwardedClient limits service calls per end-user IP, read from the
// ip_address field a calling service forwards in the JSON body. Requests that
// carry no valid ip_address are passed through; RateLimitByCaller bounds them.
func RateLimitByForwardedClient(config RateLimitConfig) func(next http.Handler) http.Handler {
	limit := httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			ip, _ := r.Context().Value(forwardedIPKey{}).(string)
			return "client:" + ip, nil
		}),
		httprate.WithLimitHandler(limitExceeded),
	)

	return func(next http.Handler) http.Handler {
		limited := limit(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := peekForwardedIP(r)
			if ip == "" {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), forwardedIPKey{}, ip)))
		})
	}
}

// peekForwardedIP reads ip_address from a JSON body and leaves the body intact
// for the handler
func peekForwardedIP(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, pkghttp.MaxRequestBodyBytes+1))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf), r.Body), r.Body}
	if err != nil || len(buf) > pkghttp.MaxRequestBodyBytes {
		return ""
	}

	var body struct {
		IPAddress string `json:"ip_address"`
	}
	if err := json.Unmarshal(buf, &body); err != nil {
		return ""
	}

	addr, err := netip.ParseAddr(body.IPAddress)
	if err != nil {
		return ""
	}
	return addr.Unmap().String()
}
