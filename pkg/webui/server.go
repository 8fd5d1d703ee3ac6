// Package webui exposes the orchestrator's HTTP API and the monitoring dashboard.
package webui

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orchestrator/internal/kernel"
	"orchestrator/pkg/logx"
	"orchestrator/pkg/metrics"
)

//go:embed web/templates/*.html
var templateFS embed.FS

// Server serves the REST API consumed by callers and the human dashboard.
type Server struct {
	kernel    *kernel.Kernel
	stats     *metrics.QueryService
	logger    *logx.Logger
	templates *template.Template
}

// NewServer creates the web server. stats may be nil when no Prometheus
// server is configured; the dashboard degrades gracefully.
func NewServer(k *kernel.Kernel, stats *metrics.QueryService) *Server {
	// Templates are embedded at compile time; a parse failure is a build defect.
	templates, err := template.ParseFS(templateFS, "web/templates/*.html")
	if err != nil {
		panic(fmt.Sprintf("failed to parse embedded templates: %v", err))
	}

	return &Server{
		kernel:    k,
		stats:     stats,
		logger:    logx.NewLogger("webui"),
		templates: templates,
	}
}

// RegisterRoutes sets up all HTTP routes.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /agents", s.handleListAgents)
	mux.HandleFunc("POST /task", s.handleTask)
	mux.HandleFunc("POST /task/async", s.handleTaskAsync)
	mux.HandleFunc("POST /discover", s.handleDiscover)
	mux.HandleFunc("GET /responses/{user_id}", s.handleResponses)
	mux.HandleFunc("GET /.well-known/agent.json", s.handleAgentCard)

	mux.HandleFunc("GET /ui", s.handleDashboard)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	mux.Handle("GET /metrics", promhttp.Handler())
}
