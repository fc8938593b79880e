// Package mcpserver exposes workflow operations as MCP tools so that agents
// can list definitions and start runs the same way the HTTP API does.
package mcpserver

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/server"

	"collectflow/auth"
	"collectflow/workflow"
)

const (
	serverName    = "collectflow"
	serverVersion = "1.0.0"
	basePath      = "/mcp"
)

// WorkflowRunner starts workflow runs.
type WorkflowRunner interface {
	Execute(ctx context.Context, req workflow.ExecuteRequest) (workflow.RunRecord, error)
}

// TokenVerifier turns a bearer token into caller claims.
type TokenVerifier interface {
	VerifyToken(token string) (auth.Claims, error)
}

// Deps holds what the tool handlers need.
type Deps struct {
	Runner  WorkflowRunner
	Catalog *workflow.Catalog
	Logger  *slog.Logger
}

// Server wraps an MCP server with collection workflow tools.
type Server struct {
	runner    WorkflowRunner
	catalog   *workflow.Catalog
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &Server{
		runner:  deps.Runner,
		catalog: deps.Catalog,
		logger:  logger,
	}

	mcpSrv := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("collectflow runs debt-collection workflows. Use list_workflows to see the catalog, get_workflow for step details and execute_workflow to run a workflow against a case."),
	)
	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// MCPServer returns the underlying server for custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// MountHTTPHandlers serves the streamable HTTP transport on /mcp and the SSE
// transport under /mcp/sse and /mcp/message. Every request must carry a
// bearer token; its claims are attached to the tool call context.
func (s *Server) MountHTTPHandlers(mux *http.ServeMux, tokens TokenVerifier) {
	sseServer := server.NewSSEServer(s.mcpServer,
		server.WithStaticBasePath(basePath),
		server.WithSSEContextFunc(claimsContext(tokens)),
	)
	streamServer := server.NewStreamableHTTPServer(s.mcpServer,
		server.WithHTTPContextFunc(claimsContext(tokens)),
	)

	// Server-initiated streams go over /mcp/sse, so GET on the root is refused.
	stream := requireBearer(tokens, streamServer)
	mux.Handle(basePath, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodDelete:
			stream.ServeHTTP(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	sse := requireBearer(tokens, sseServer)
	mux.Handle(basePath+"/sse", sse)
	mux.Handle(basePath+"/message", sse)
}

func claimsContext(tokens TokenVerifier) func(context.Context, *http.Request) context.Context {
	return func(ctx context.Context, r *http.Request) context.Context {
		claims, err := tokens.VerifyToken(bearerToken(r))
		if err != nil {
			return ctx
		}
		return auth.WithClaims(ctx, claims)
	}
}

func requireBearer(tokens TokenVerifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		if _, err := tokens.VerifyToken(token); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}
