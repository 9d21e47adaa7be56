package middleware

import (
	"io"
	"net/http"

	"github.com/vyrodovalexey/langgate/internal/observability"
	"github.com/vyrodovalexey/langgate/internal/router"
	"github.com/vyrodovalexey/langgate/internal/util"
)

// ErrBodyTooLarge is returned by reads past the body limit.
var ErrBodyTooLarge = util.ErrPayloadTooLarge

// BodyLimit caps request bodies at maxSize bytes. A declared Content-Length
// over the cap is refused with 413 before the handler runs; otherwise reads
// past the cap fail with ErrBodyTooLarge.
func BodyLimit(maxSize int64, logger observability.Logger) router.Middleware {
	if logger == nil {
		logger = observability.NopLogger()
	}

	return func(req *http.Request, next router.Next, _ router.ConnInfo, _ *router.Route) (*router.Response, error) {
		if req.ContentLength > maxSize {
			logger.WithContext(req.Context()).Warn("request body too large",
				observability.Int64("content_length", req.ContentLength),
				observability.Int64("max_size", maxSize),
				observability.String("path", req.URL.Path),
			)
			return router.Error(http.StatusRequestEntityTooLarge, MsgBodyTooLarge), nil
		}

		if req.Body != nil && req.Body != http.NoBody {
			req.Body = &limitedReadCloser{ReadCloser: req.Body, remaining: maxSize}
		}
		return next(req)
	}
}

type limitedReadCloser struct {
	io.ReadCloser
	remaining int64
}

func (l *limitedReadCloser) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		var probe [1]byte
		n, err := l.ReadCloser.Read(probe[:])
		if n > 0 {
			return 0, ErrBodyTooLarge
		}
		return 0, err
	}

	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.ReadCloser.Read(p)
	l.remaining -= int64(n)
	return n, err
}
