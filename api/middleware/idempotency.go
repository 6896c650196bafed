package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/pullstream-backend/api/responses"
	pkgerrors "github.com/angelmondragon/pullstream-backend/pkg/errors"
	"github.com/angelmondragon/pullstream-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/pullstream-backend/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayHeader      = "Idempotent-Replayed"

	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	// An in-flight reservation outlives any handler; it is replaced by the
	// final record or deleted once the handler returns.
	inflightTTL = 2 * time.Minute

	gigsCollection = "/api/v1/gigs"
)

// gigActionTTL covers POST /api/v1/gigs/{gigId}/{action}. Money movement is
// remembered for a week.
var gigActionTTL = map[string]time.Duration{
	"pause":    defaultIdempotencyTTL,
	"resume":   defaultIdempotencyTTL,
	"pay":      criticalIdempotencyTTL,
	"withdraw": criticalIdempotencyTTL,
}

type idempotencyRecord struct {
	Pending     bool              `json:"pending,omitempty"`
	Status      int               `json:"status,omitempty"`
	Body        string            `json:"body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestHash string            `json:"request_hash"`
}

// Idempotency makes mutating gig requests safe to retry. The first request
// under a key reserves it, later ones replay the stored response, and a
// concurrent duplicate is rejected while the first is still running. Server
// errors release the key so the caller can retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := hashBody(body)
			key := store.IdempotencyKey(buildScope(r), clientKey)

			reserved, err := reserve(ctx, store, key, hash)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replayOrReject(ctx, store, logg, w, key, hash)
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			// The caller may have gone away; the outcome still has to land.
			persistCtx := context.WithoutCancel(ctx)
			if rec.statusCode() >= http.StatusInternalServerError {
				if err := store.Del(persistCtx, key); err != nil {
					logError(ctx, logg, "release idempotency key", err)
				}
				return
			}
			if err := store.Set(persistCtx, key, rec.record(hash), ttl); err != nil {
				logError(ctx, logg, "persist idempotency record", err)
			}
		})
	}
}

func reserve(ctx context.Context, store pkgredis.IdempotencyStore, key, hash string) (bool, error) {
	marker, err := json.Marshal(idempotencyRecord{Pending: true, RequestHash: hash})
	if err != nil {
		return false, err
	}
	return store.SetNX(ctx, key, string(marker), inflightTTL)
}

func replayOrReject(ctx context.Context, store pkgredis.IdempotencyStore, logg *logger.Logger, w http.ResponseWriter, key, hash string) {
	stored, err := store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		// The reservation expired between SetNX and Get.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this Idempotency-Key is still in progress"))
		return
	case err != nil:
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}

	var record idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case record.RequestHash != hash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case record.Pending:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this Idempotency-Key is still in progress"))
	default:
		writeStoredResponse(w, record)
	}
}

func buildScope(r *http.Request) string {
	return strings.Join([]string{
		strings.ToLower(IdentityFromContext(r.Context())),
		r.Method,
		r.URL.Path,
	}, "|")
}

func writeStoredResponse(w http.ResponseWriter, record idempotencyRecord) {
	for name, value := range record.Headers {
		w.Header().Set(name, value)
	}
	w.Header().Set(ReplayHeader, "true")
	w.WriteHeader(record.Status)
	if decoded, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// routePattern prefers chi's matched pattern. Inside a mounted router the
// pattern is still partial ("/api/v1/gigs/*"), so the raw path is used.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" && !strings.HasSuffix(pattern, "*") {
			return pattern
		}
	}
	if path := strings.TrimSuffix(r.URL.Path, "/"); path != "" {
		return path
	}
	return r.URL.Path
}

func routeTTL(method, pattern string) (time.Duration, bool) {
	if method != http.MethodPost {
		return 0, false
	}
	rest, ok := strings.CutPrefix(pattern, gigsCollection)
	if !ok {
		return 0, false
	}
	if rest == "" {
		return defaultIdempotencyTTL, true
	}
	segments := strings.Split(strings.TrimPrefix(rest, "/"), "/")
	if len(segments) != 2 || segments[0] == "" {
		return 0, false
	}
	ttl, ok := gigActionTTL[segments[1]]
	return ttl, ok
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *responseCapture) record(hash string) string {
	rec := idempotencyRecord{
		Status:      r.statusCode(),
		Body:        base64.StdEncoding.EncodeToString(r.body.Bytes()),
		RequestHash: hash,
	}
	headers := map[string]string{}
	for _, name := range []string{"Content-Type", "Location"} {
		if v := r.Header().Get(name); v != "" {
			headers[name] = v
		}
	}
	if len(headers) > 0 {
		rec.Headers = headers
	}
	payload, _ := json.Marshal(rec)
	return string(payload)
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
