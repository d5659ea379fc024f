package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/angelmondragon/betza-storefront/api/responses"
	pkgerrors "github.com/angelmondragon/betza-storefront/pkg/errors"
	"github.com/angelmondragon/betza-storefront/pkg/logger"
)

const functionsPrefix = "/functions/"

// Recoverer turns a handler panic into a 500 in the shape the caller expects:
// the bare {error} body on payment functions and the envelope everywhere else.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				err := fmt.Errorf("panic: %v", rec)
				ctx := r.Context()
				if logg != nil {
					ctx = logg.WithFields(ctx, map[string]any{"panic": rec, "path": r.URL.Path})
					logg.Error(ctx, "panic.recovered", err)
				}

				appErr := pkgerrors.Wrap(pkgerrors.CodeInternal, err, "panic")
				if strings.HasPrefix(r.URL.Path, functionsPrefix) {
					responses.WriteFunctionError(ctx, logg, w, appErr)
					return
				}
				responses.WriteError(ctx, logg, w, appErr)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
