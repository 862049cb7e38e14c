package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/wayfare/wayfare/pkg/api/response"
	"github.com/wayfare/wayfare/pkg/logger"
)

// Recovery returns a middleware that converts handler panics into 500
// responses instead of dropped connections, logging the stack.
func Recovery(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				cause := recover()
				if cause == nil {
					return
				}
				log.ErrorContext(r.Context(), "panic recovered",
					"error", cause,
					"path", r.URL.Path,
					"method", r.Method,
					"stack", string(debug.Stack()),
				)
				response.Error(w,
					http.StatusInternalServerError,
					response.ErrCodeInternalServer,
					fmt.Sprintf("internal server error: %v", cause),
					requestIDOrUnknown(r),
				)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
