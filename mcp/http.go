package mcp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// DefaultHTTPPort is where ServeHTTP listens unless told otherwise.
const DefaultHTTPPort = 8808

// HTTPHandler returns the streamable-HTTP MCP endpoint mounted under /mcp,
// plus a health probe.
func (s *Server) HTTPHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	h := sdk.NewStreamableHTTPHandler(func(*http.Request) *sdk.Server { return s.sdk }, nil)
	r.Handle("/mcp", h)
	r.Handle("/mcp/*", h)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return r
}

// logRequests is a slog access-log middleware.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).Round(time.Millisecond),
		)
	})
}

// ServeHTTP serves MCP over streamable HTTP on addr until the context is
// cancelled, then shuts down gracefully.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.HTTPHandler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("serving MCP over HTTP", "addr", addr, "endpoint", "http://"+addr+"/mcp")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		err := <-errCh
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case err := <-errCh:
		return err
	}
}
