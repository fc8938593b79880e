package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"collectflow/auth"
	"collectflow/workflow"
)

// ServiceName tags traces emitted by the HTTP layer.
const ServiceName = "collectflow"

// WorkflowRunner starts workflow runs.
type WorkflowRunner interface {
	Execute(ctx context.Context, req workflow.ExecuteRequest) (workflow.RunRecord, error)
}

// RunLister reads run history.
type RunLister interface {
	ListRuns(ctx context.Context, organizationID, caseID string, limit int) ([]workflow.RunRecord, error)
}

// TokenVerifier turns a bearer token into caller claims.
type TokenVerifier interface {
	VerifyToken(token string) (auth.Claims, error)
}

// Pinger reports backing store readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the HTTP handlers for the workflow API.
type Server struct {
	runner  WorkflowRunner
	runs    RunLister
	catalog *workflow.Catalog
	tokens  TokenVerifier
	pinger  Pinger
	logger  *slog.Logger
	now     func() time.Time
}

func NewServer(runner WorkflowRunner, runs RunLister, catalog *workflow.Catalog, tokens TokenVerifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		runner:  runner,
		runs:    runs,
		catalog: catalog,
		tokens:  tokens,
		logger:  logger,
		now:     time.Now,
	}
}

// WithPinger enables the readiness probe.
func (s *Server) WithPinger(p Pinger) *Server {
	s.pinger = p
	return s
}

// NewEcho builds the echo instance with middleware and all routes.
func (s *Server) NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleHTTPError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(otelecho.Middleware(ServiceName))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			s.logger.LogAttrs(c.Request().Context(), level, "http request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			)
			return nil
		},
	}))

	s.Register(e)
	return e
}

// Register mounts the routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/readyz", s.handleReady)

	v1 := e.Group("/api/v1", s.requireAuth)
	v1.GET("/workflows", s.handleListWorkflows)
	v1.GET("/workflows/:id", s.handleGetWorkflow)
	v1.POST("/cases/:id/workflow-runs", s.handleExecute)
	v1.GET("/cases/:id/workflow-runs", s.handleListRuns)
}
