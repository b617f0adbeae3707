package api

import (
	"bytes"
	"context"
	"net/http"

	"github.com/pipphxntom/AeonPay/internal/idempotency"
	"github.com/pipphxntom/AeonPay/internal/metrics"
	"github.com/pipphxntom/AeonPay/internal/model"
)

// responseCache is the slice of the idempotency store the middleware needs.
type responseCache interface {
	Claim(ctx context.Context, key string) (claimed bool, cached *idempotency.CachedResponse, err error)
	Complete(ctx context.Context, key string, statusCode int, body []byte) error
	Release(ctx context.Context, key string) error
}

// idempotencyMiddleware deduplicates mutating requests carrying an
// Idempotency-Key header. The first request claims the key and executes;
// a repeat gets the stored response verbatim; a concurrent duplicate whose
// winner is still in flight gets 409 and should retry.
func (s *Server) idempotencyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("Idempotency-Key")
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		claimed, cached, err := s.idem.Claim(r.Context(), key)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		if !claimed {
			if cached == nil {
				s.writeError(w, r, model.E(model.KindAlreadyProcessed, key,
					"request with this idempotency key is in flight"))
				return
			}
			metrics.RecordIdempotentReplay()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotency-Replayed", "true")
			w.WriteHeader(cached.StatusCode)
			w.Write(cached.Body)
			return
		}

		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}

		// The claim must never outlive a request that produced no stored
		// response: a handler panic unwinding past this point would
		// otherwise leave the key claimed forever, turning every retry
		// into a 409. The deferred release runs while the panic propagates
		// to the outer recovery middleware.
		settled := false
		defer func() {
			if settled {
				return
			}
			if err := s.idem.Release(context.WithoutCancel(r.Context()), key); err != nil {
				s.log.Error("failed to release idempotency key", "key", key, "err", err)
			}
		}()

		next.ServeHTTP(rec, r)

		// The client may already hold the response, so completion errors
		// can only be logged. Context is detached: the client going away
		// must not prevent the store from settling.
		ctx := context.WithoutCancel(r.Context())
		if rec.status >= 200 && rec.status < 300 {
			if err := s.idem.Complete(ctx, key, rec.status, rec.body.Bytes()); err != nil {
				s.log.Error("failed to complete idempotency key", "key", key, "err", err)
			}
		} else {
			if err := s.idem.Release(ctx, key); err != nil {
				s.log.Error("failed to release idempotency key", "key", key, "err", err)
			}
		}
		settled = true
	})
}

// responseRecorder tees the response so a copy can be stored.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.status = status
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
