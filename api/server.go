// Package api exposes the workflow engine over HTTP: start a workflow,
// poll its state, cancel it, and inspect stage health.
package api

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/meridianbio/pipeline"
	"github.com/meridianbio/pipeline/engine"
)

// Server wires the engine into a fiber app
type Server struct {
	engine *engine.Engine
	logger zerolog.Logger
}

// NewServer creates the HTTP surface over an engine
func NewServer(eng *engine.Engine, logger zerolog.Logger) *Server {
	return &Server{engine: eng, logger: logger}
}

// Register mounts all routes on the app
func (s *Server) Register(app *fiber.App) {
	app.Get("/health", s.handleHealth)

	v1 := app.Group("/api/v1")
	workflows := v1.Group("/workflows")
	workflows.Post("/", s.handleStartWorkflow)
	workflows.Get("/", s.handleListWorkflows)
	workflows.Get("/:workflowId", s.handleGetState)
	workflows.Post("/:workflowId/cancel", s.handleCancelWorkflow)
}

// startRequest is the start-workflow request body. The input is handed to
// the first stages as-is.
type startRequest struct {
	Input json.RawMessage `json:"input"`
}

func (s *Server) handleStartWorkflow(c fiber.Ctx) error {
	var req startRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	workflowID, err := s.engine.StartWorkflow(c.Context(), req.Input)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidInput) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		s.logger.Error().Err(err).Msg("Failed to start workflow")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to start workflow",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"workflowId": workflowID,
		"status":     pipeline.WorkflowInitiated,
	})
}

func (s *Server) handleGetState(c fiber.Ctx) error {
	workflowID := c.Params("workflowId")

	state, err := s.engine.GetState(c.Context(), workflowID)
	if err != nil {
		if errors.Is(err, pipeline.ErrWorkflowNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Workflow not found",
			})
		}
		s.logger.Error().Err(err).Str("workflow_id", workflowID).Msg("Failed to get workflow state")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get workflow state",
		})
	}

	return c.JSON(state)
}

func (s *Server) handleListWorkflows(c fiber.Ctx) error {
	filter := pipeline.ListFilter{
		Status: pipeline.WorkflowStatus(c.Query("status")),
		Limit:  fiber.Query[int](c, "limit"),
	}

	states, err := s.engine.ListWorkflows(c.Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list workflows")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list workflows",
		})
	}

	return c.JSON(fiber.Map{
		"workflows": states,
		"count":     len(states),
	})
}

func (s *Server) handleCancelWorkflow(c fiber.Ctx) error {
	workflowID := c.Params("workflowId")

	if err := s.engine.Cancel(c.Context(), workflowID); err != nil {
		if errors.Is(err, pipeline.ErrWorkflowNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Workflow not found",
			})
		}
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"workflowId": workflowID,
		"message":    "Workflow cancellation requested",
	})
}

// handleHealth reports per-stage collaborator health and breaker states
func (s *Server) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"stages":   s.engine.Monitor().Snapshot(),
		"breakers": s.engine.Registry().BreakerStates(),
	})
}
