// internal/common/validation/middleware.go
// HTTP middleware running a validation chain before the handler

package validation

import (
	"bytes"
	"io"
	"net/http"

	"github.com/imadgeboyega/marketplace-auth/internal/common/utils"
)

const maxBodyBytes = 1 << 20

// RejectFunc is called with the failures before the 400 is written
type RejectFunc func(r *http.Request, errs []FieldError)

// Validate runs chain against the request. Any failure answers 400 with the
// full error list and the next handler is not called. Sanitized values are
// written back into the body seen by the next handler.
func Validate(chain Chain, onReject RejectFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var raw []byte
			if r.Body != nil {
				var err error
				raw, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
				if err != nil {
					utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
					return
				}
			}

			in, err := NewInput(raw, r.URL.Query())
			if err != nil {
				utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
				return
			}

			if errs := chain.Run(in); len(errs) > 0 {
				if onReject != nil {
					onReject(r, errs)
				}
				utils.ValidationErrorResponse(w, "Validation failed", errs)
				return
			}

			body, err := in.Body(raw)
			if err != nil {
				utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
			if in.queryDirty {
				r.URL.RawQuery = in.Query().Encode()
			}

			next.ServeHTTP(w, r)
		})
	}
}
