// Package server turns persisted endpoint IRs into a running gin HTTP API
// (spec.md §4.6, C9): one route per endpoint IR, each binding its path and
// query parameters into the IR's stored SQL query and running it against
// Postgres.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"smorty/internal/ir"
)

// Error reports a request-time failure (spec.md §7 QueryError).
type Error struct {
	Msg    string
	Status int
}

func (e *Error) Error() string { return e.Msg }

func errf(status int, format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...), Status: status}
}

// Server wires endpoint IRs onto a gin engine.
type Server struct {
	engine *gin.Engine
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New builds a Server. Call RegisterEndpoints with every endpoint IR the
// caller wants served, then Run.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger), corsMiddleware())

	s := &Server{engine: engine, pool: pool, logger: logger}

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "smorty"})
	})
	engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": "smorty", "docs": "/api-docs/openapi.json"})
	})

	return s
}

// Engine exposes the underlying gin engine, e.g. for tests.
func (s *Server) Engine() *gin.Engine { return s.engine }

// RegisterEndpoints installs one route per endpoint IR and a combined
// OpenAPI document describing all of them (spec.md §4.6).
func (s *Server) RegisterEndpoints(endpoints []*ir.EndpointIR) error {
	for _, ep := range endpoints {
		if err := s.registerEndpoint(ep); err != nil {
			return err
		}
	}

	doc := buildOpenAPI(endpoints)
	s.engine.GET("/api-docs/openapi.json", func(c *gin.Context) {
		c.JSON(http.StatusOK, doc)
	})
	s.engine.GET("/swagger-ui/", swaggerUIHandler)

	return nil
}

func (s *Server) registerEndpoint(ep *ir.EndpointIR) error {
	ginPath := toGinPath(ep.EndpointPath)
	handler := s.makeHandler(ep)

	switch strings.ToUpper(ep.Method) {
	case "", "GET":
		s.engine.GET(ginPath, handler)
	default:
		return errf(http.StatusInternalServerError, "endpoint %s declares unsupported method %q", ep.EndpointPath, ep.Method)
	}

	s.logger.Info("registered endpoint", zap.String("path", ginPath), zap.Int("tables", len(ep.TablesReferenced)))
	return nil
}

// toGinPath rewrites {name} path placeholders (the IR's own convention) into
// gin's :name convention.
func toGinPath(endpointPath string) string {
	var b strings.Builder
	for i := 0; i < len(endpointPath); i++ {
		if endpointPath[i] == '{' {
			end := strings.IndexByte(endpointPath[i:], '}')
			if end < 0 {
				b.WriteByte(endpointPath[i])
				continue
			}
			name := endpointPath[i+1 : i+end]
			b.WriteString(":" + name)
			i += end
			continue
		}
		b.WriteByte(endpointPath[i])
	}
	return b.String()
}

func (s *Server) makeHandler(ep *ir.EndpointIR) gin.HandlerFunc {
	return func(c *gin.Context) {
		args, err := BindParams(c, ep)
		if err != nil {
			s.respondError(c, err)
			return
		}

		rows, err := runQuery(c.Request.Context(), s.pool, ep, args)
		if err != nil {
			s.respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": rows, "count": len(rows)})
	}
}

// BindParams binds path parameters, then query parameters in declared
// order, into a positional argument slice matching the SQL query's $1..$N
// placeholders (spec.md §4.3: path params bind first, query params second).
func BindParams(c *gin.Context, ep *ir.EndpointIR) ([]any, error) {
	args := make([]any, 0, len(ep.PathParams)+len(ep.QueryParams))

	for _, p := range ep.PathParams {
		raw := c.Param(p.Name)
		if raw == "" {
			return nil, errf(http.StatusBadRequest, "missing path parameter %q", p.Name)
		}
		value, err := coerce(p.SemanticType, raw)
		if err != nil {
			return nil, errf(http.StatusBadRequest, "path parameter %q: %v", p.Name, err)
		}
		args = append(args, value)
	}

	for _, q := range ep.QueryParams {
		raw := c.Query(q.Name)
		inner, isOption := ir.IsOption(q.SemanticType)
		fromDefault := false

		if raw == "" {
			// An absent option<T> binds NULL regardless of whether the IR
			// carries a default — the pipeline never needs a default for an
			// optional parameter to mean "unset" (spec.md §4.6 step 2).
			if isOption {
				args = append(args, nil)
				continue
			}
			if !q.HasDefault || q.Default == nil {
				return nil, errf(http.StatusBadRequest, "missing query parameter %q", q.Name)
			}
			raw = *q.Default
			fromDefault = true
		}

		if q.Name == "limit" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, errf(http.StatusBadRequest, "query parameter %q must be an integer", q.Name)
			}
			// Only a user-supplied limit is rejected for exceeding the cap;
			// an IR-sourced default is trusted as-is and passed through
			// uncapped.
			if n > 200 && !fromDefault {
				return nil, errf(http.StatusBadRequest, "query parameter %q cannot exceed 200", q.Name)
			}
			args = append(args, n)
			continue
		}

		if isOption {
			if raw == "null" {
				args = append(args, nil)
				continue
			}
			value, err := coerce(inner, raw)
			if err != nil {
				return nil, errf(http.StatusBadRequest, "query parameter %q: %v", q.Name, err)
			}
			args = append(args, value)
			continue
		}

		value, err := coerce(q.SemanticType, raw)
		if err != nil {
			return nil, errf(http.StatusBadRequest, "query parameter %q: %v", q.Name, err)
		}
		args = append(args, value)
	}

	return args, nil
}

func coerce(semanticType, raw string) (any, error) {
	switch semanticType {
	case ir.TypeInt64:
		return strconv.ParseInt(raw, 10, 64)
	case ir.TypeUint64:
		return strconv.ParseUint(raw, 10, 64)
	case ir.TypeBool:
		return strconv.ParseBool(raw)
	case ir.TypeDecimal, ir.TypeString:
		return raw, nil
	default:
		return raw, nil
	}
}

// respondError reports a request failure to the client. Client errors (4xx)
// carry their message as-is — they're already about the request itself, not
// the database. Server errors (5xx) never reach the client as raw error
// text (spec.md §7: "The server never propagates raw DB errors"): the real
// error is logged with a generated correlation id, and only that id goes in
// the response body so an operator can find the matching log line.
func (s *Server) respondError(c *gin.Context, err error) {
	qe, ok := err.(*Error)
	if !ok {
		qe = errf(http.StatusInternalServerError, "%v", err)
	}

	if qe.Status < http.StatusInternalServerError {
		c.JSON(qe.Status, gin.H{"error": qe.Msg})
		return
	}

	correlationID := uuid.NewString()
	s.logger.Error("request failed",
		zap.String("correlation_id", correlationID),
		zap.String("path", c.Request.URL.Path),
		zap.Error(qe),
	)
	c.JSON(qe.Status, gin.H{"error": "internal error", "correlation_id": correlationID})
}

// requestLogger logs each request the way the teacher's cmd/indexer logs
// batch progress: structured zap fields, one line per event.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
		)
	}
}

func swaggerUIHandler(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(swaggerUIPage))
}

const swaggerUIPage = `<!DOCTYPE html>
<html>
<head><title>Smorty API</title>
<link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist/swagger-ui.css">
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist/swagger-ui-bundle.js"></script>
<script>
window.onload = () => SwaggerUIBundle({ url: "/api-docs/openapi.json", dom_id: "#swagger-ui" });
</script>
</body>
</html>`

// Run starts the HTTP server, shutting down cleanly when ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

var shutdownTimeout = defaultShutdownTimeout()

func defaultShutdownTimeout() (d time.Duration) {
	if v := os.Getenv("SMORTY_SHUTDOWN_TIMEOUT"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return 10 * time.Second
}
