package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/wayfare/wayfare/pkg/api/response"
)

// Timeout returns a middleware that bounds request handling time.
// Handlers with their own wait budgets (such as completion waits) must
// derive them from the request context so both expire together.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(w, r.WithContext(ctx))
			}()

			select {
			case <-done:
				return
			case <-ctx.Done():
			}

			response.Error(w,
				http.StatusGatewayTimeout,
				response.ErrCodeGatewayTimeout,
				"request timeout",
				requestIDOrUnknown(r),
			)
		})
	}
}

func requestIDOrUnknown(r *http.Request) string {
	if id := GetRequestID(r.Context()); id != "" {
		return id
	}
	return "unknown"
}
