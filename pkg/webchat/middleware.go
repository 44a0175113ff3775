package webchat

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type middleware func(http.Handler) http.Handler

// chainMiddlewares applies middlewares so that the first one is the outermost.
func chainMiddlewares(h http.Handler, mws ...middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// statusRecorder captures the response status. It keeps Hijack and Flush
// available for websocket upgrades.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	if r.status == 0 {
		r.status = http.StatusSwitchingProtocols
	}
	return hj.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// withRequestLogging logs every request on the global logger and, when
// accessLog is set, on the access logger as well.
func withRequestLogging(accessLog *zerolog.Logger) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, req)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			ev := log.Debug()
			if status >= http.StatusInternalServerError {
				ev = log.Warn()
			}
			ev.Str("component", "http").
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", status).
				Dur("duration", time.Since(start)).
				Msg("request")

			if accessLog != nil {
				accessLog.Info().
					Str("remote", req.RemoteAddr).
					Str("method", req.Method).
					Str("path", req.URL.Path).
					Int("status", status).
					Int("bytes", rec.bytes).
					Dur("duration", time.Since(start)).
					Str("user_agent", req.UserAgent()).
					Send()
			}
		})
	}
}

// withCORS leaves the API open to browser front-ends on other origins.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withTracing(operation string) middleware {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, operation)
	}
}
