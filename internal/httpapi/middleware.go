package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxBodyBytes = 1 << 20

var securityHeaders = map[string]string{
	"X-Content-Type-Options":       "nosniff",
	"X-Frame-Options":              "DENY",
	"Referrer-Policy":              "strict-origin-when-cross-origin",
	"Cross-Origin-Opener-Policy":   "same-origin",
	"Access-Control-Allow-Headers": "Content-Type, Authorization, X-CSRF-Token",
	"Access-Control-Allow-Methods": "GET,POST,PATCH,OPTIONS",
	"Vary":                         "Origin",
}

func isMutation(method string) bool {
	return method == http.MethodPost || method == http.MethodPatch || method == http.MethodPut
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		for key, value := range securityHeaders {
			header.Set(key, value)
		}
		header.Set("Access-Control-Allow-Origin", a.allowedOrigin)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if isMutation(r.Method) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			if !csrfExempt(r.URL.Path) && !a.validCSRFToken(r.Header.Get("X-CSRF-Token")) {
				writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
				return
			}
		}

		began := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(began))
	})
}

// Badge and password login run before a token can be fetched.
func csrfExempt(path string) bool {
	return path == "/api/v1/auth/login" || path == "/api/v1/auth/barcode-login"
}

// csrfToken signs the hour bucket containing at.
func (a *API) csrfToken(at time.Time) string {
	mac := hmac.New(sha256.New, a.csrfSecret)
	mac.Write([]byte(strconv.FormatInt(at.UTC().Truncate(time.Hour).Unix(), 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// validCSRFToken accepts tokens from the current or the previous hour.
func (a *API) validCSRFToken(token string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}
	now := time.Now()
	for _, at := range []time.Time{now, now.Add(-time.Hour)} {
		if hmac.Equal([]byte(token), []byte(a.csrfToken(at))) {
			return true
		}
	}
	return false
}

// attemptLimiter counts attempts per key in fixed windows.
type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	buckets map[string]*attemptBucket
}

type attemptBucket struct {
	opened time.Time
	count  int
}

func newAttemptLimiter(limit int, window time.Duration) *attemptLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{
		max:     max(1, limit),
		window:  window,
		buckets: make(map[string]*attemptBucket),
	}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.buckets) > 4096 {
		l.sweep(now)
	}
	bucket, ok := l.buckets[key]
	if !ok || now.Sub(bucket.opened) >= l.window {
		l.buckets[key] = &attemptBucket{opened: now, count: 1}
		return true
	}
	if bucket.count >= l.max {
		return false
	}
	bucket.count++
	return true
}

func (l *attemptLimiter) sweep(now time.Time) {
	for key, bucket := range l.buckets {
		if now.Sub(bucket.opened) >= l.window {
			delete(l.buckets, key)
		}
	}
}

func clientKey(r *http.Request) string {
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return remote
}
