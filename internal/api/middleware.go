package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserCookieName is the signed identity cookie. Auth proper lives in an
// external collaborator; the signed uid is the narrow interface this
// service trusts.
const UserCookieName = "uid"

// userCookieMaxAge is the identity cookie lifetime in seconds.
const userCookieMaxAge = 365 * 24 * 3600

// Unexported context key types to prevent collisions.
type userIDKey struct{}
type requestIDKey struct{}

// UserID retrieves the authenticated user id from the request context.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	return id, ok
}

// RequestID retrieves the request id from the request context.
func RequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok
}

// loggingWriter wraps http.ResponseWriter to capture status and size.
// It implements Flusher so SSE streaming works through the stack.
type loggingWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (w *loggingWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingWriter) Write(b []byte) (int, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += int64(n)
	return n, err
}

func (w *loggingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *loggingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// recoveryMiddleware recovers from handler panics. If headers already
// went out (mid-stream panic) it can only log.
func recoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapper := &loggingWriter{ResponseWriter: w}
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						"error", err,
						"path", r.URL.Path,
						"headers_sent", wrapper.statusCode != 0,
					)
					if wrapper.statusCode == 0 {
						http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					}
				}
			}()
			next.ServeHTTP(wrapper, r)
		})
	}
}

// requestIDMiddleware assigns each request an id, echoed in the
// X-Request-ID header and carried in the context for log correlation.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs request details including latency and status.
func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapper := &loggingWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapper, r)

			requestID, _ := RequestID(r.Context())
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapper.statusCode,
				"bytes", wrapper.bytesWritten,
				"duration", time.Since(start),
				"ip", r.RemoteAddr,
				"request_id", requestID,
			)
		})
	}
}

// corsMiddleware allows the configured browser origins. With no origins
// configured, cross-origin requests are refused by omission.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && allowed[origin] {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Add("Vary", "Origin")
				if r.Method == http.MethodOptions {
					h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE")
					h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
					h.Set("Access-Control-Max-Age", "600")
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// identity validates and issues the signed uid cookie.
type identity struct {
	secret []byte
	logger *slog.Logger
	secure bool
}

// middleware resolves the caller's identity. A valid signed cookie is
// accepted; a missing cookie gets a fresh identity issued on the spot;
// a tampered signature is rejected outright.
func (id *identity) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(UserCookieName)
		if err == nil && cookie.Value != "" {
			userID, ok := id.verify(cookie.Value)
			if !ok {
				id.logger.Warn("rejecting tampered identity cookie", "ip", r.RemoteAddr)
				writeJSON(w, id.logger, http.StatusUnauthorized,
					errorBody{Code: "auth_required", Message: "invalid identity"})
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey{}, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		userID := uuid.NewString()
		id.setCookie(w, userID)
		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sign computes the HMAC-SHA256 signature of a user id.
func (id *identity) sign(userID string) string {
	h := hmac.New(sha256.New, id.secret)
	h.Write([]byte(userID))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// verify splits a cookie value of the form "<uid>.<signature>" and
// checks the signature in constant time.
func (id *identity) verify(value string) (string, bool) {
	userID, sig, found := strings.Cut(value, ".")
	if !found || userID == "" {
		return "", false
	}
	expected := id.sign(userID)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return "", false
	}
	return userID, true
}

func (id *identity) setCookie(w http.ResponseWriter, userID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     UserCookieName,
		Value:    userID + "." + id.sign(userID),
		Path:     "/",
		MaxAge:   userCookieMaxAge,
		HttpOnly: true,
		Secure:   id.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
