// Package api provides the thin HTTP surface named in spec.md §6:
// health/status, workflow listing and dispatch, and read-only audit
// endpoints. It wires together the engine, registry, ledger, and cage
// controller that cmd/akios constructs; it owns no state of its own.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/akios/akios/pkg/audit"
	"github.com/akios/akios/pkg/cage"
	"github.com/akios/akios/pkg/version"
	"github.com/akios/akios/pkg/workflow"
)

// Server is the gin-backed HTTP API server.
type Server struct {
	router *gin.Engine
	http   *http.Server

	engine        *workflow.Engine
	registry      *workflow.Registry
	ledger        *audit.Ledger
	cage          *cage.Controller
	workflows     *WorkflowStore
	defaultBudget workflow.BudgetConfig
	logger        *slog.Logger
}

// NewServer builds the router and registers every route. All
// dependencies are constructed by the caller (cmd/akios) and injected
// here; Server holds no process-wide state beyond what it's handed.
// defaultBudget backstops workflows that don't declare their own budget
// block (spec.md §4.8 kill-switch defaults).
func NewServer(engine *workflow.Engine, registry *workflow.Registry, ledger *audit.Ledger, cageCtrl *cage.Controller, workflows *WorkflowStore, defaultBudget workflow.BudgetConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:        router,
		engine:        engine,
		registry:      registry,
		ledger:        ledger,
		cage:          cageCtrl,
		workflows:     workflows,
		defaultBudget: defaultBudget,
		logger:        logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/status", s.statusHandler)
	s.router.GET("/workflows", s.listWorkflowsHandler)
	s.router.POST("/workflows/run", s.runWorkflowHandler)
	s.router.GET("/workflows/:id/status", s.workflowStatusHandler)
	s.router.GET("/audit/events", s.auditEventsHandler)
	s.router.GET("/audit/verify", s.auditVerifyHandler)
}

// Start runs the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.router}
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": version.Full(), "time": time.Now().UTC().Format(time.RFC3339)})
}
