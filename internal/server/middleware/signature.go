package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/arenaledger/internal/crypto"
	"github.com/alanyoungcy/arenaledger/internal/domain"
)

// MaxBodyBytes caps signed request bodies.
const MaxBodyBytes = 64 << 10

type signerKey struct{}

// SignerFrom returns the address authenticated by Signature.
func SignerFrom(ctx context.Context) (common.Address, bool) {
	a, ok := ctx.Value(signerKey{}).(common.Address)
	return a, ok
}

// WithSigner stores addr as the authenticated caller.
func WithSigner(ctx context.Context, addr common.Address) context.Context {
	return context.WithValue(ctx, signerKey{}, addr)
}

// Signature authenticates requests signed with the X-Arena-* headers and
// puts the signer on the request context. The body is buffered and handed
// on unchanged. Each signer nonce is claimed in nonces for twice maxSkew, so
// a replayed request is refused for as long as its timestamp stays valid.
// A failing nonce store refuses the request.
func Signature(maxSkew time.Duration, now func() time.Time, nonces domain.NonceStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
			if err != nil {
				var tooBig *http.MaxBytesError
				if errors.As(err, &tooBig) {
					writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
					return
				}
				writeJSONError(w, http.StatusBadRequest, "could not read request body")
				return
			}

			addr, err := crypto.VerifyRequest(r, body, now(), maxSkew)
			if err != nil {
				logger.InfoContext(r.Context(), "signature rejected",
					slog.String("path", r.URL.Path),
					slog.String("request_id", RequestIDFrom(r.Context())),
					slog.String("error", err.Error()),
				)
				writeJSONError(w, http.StatusUnauthorized, err.Error())
				return
			}

			if nonces != nil {
				fresh, err := nonces.Claim(r.Context(), addr.Hex(), r.Header.Get(crypto.HeaderNonce), 2*maxSkew)
				if err != nil {
					logger.ErrorContext(r.Context(), "nonce store unavailable",
						slog.String("request_id", RequestIDFrom(r.Context())),
						slog.String("error", err.Error()),
					)
					writeJSONError(w, http.StatusServiceUnavailable, "replay check unavailable")
					return
				}
				if !fresh {
					logger.WarnContext(r.Context(), "replayed request rejected",
						slog.String("path", r.URL.Path),
						slog.String("signer", addr.Hex()),
						slog.String("request_id", RequestIDFrom(r.Context())),
					)
					writeJSONError(w, http.StatusUnauthorized, "request nonce already used")
					return
				}
			}

			r = r.WithContext(WithSigner(r.Context(), addr))
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
