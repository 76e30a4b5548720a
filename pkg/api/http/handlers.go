package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aescanero/varflow/internal/application/depgraph"
	"github.com/aescanero/varflow/internal/application/orchestrator"
	"github.com/aescanero/varflow/pkg/domain"
)

// CreateSessionRequest represents a session creation request
type CreateSessionRequest struct {
	Variables     []domain.VariableConfig `json:"variables"`
	InitialValues domain.InitialValues    `json:"initial_values"`
	TimeRange     domain.TimeRange        `json:"time_range"`
}

// CreateSessionResponse represents a session creation response
type CreateSessionResponse struct {
	SessionID string           `json:"session_id"`
	Snapshot  *domain.Snapshot `json:"snapshot"`
}

// ReconfigureRequest replaces a session's variables
type ReconfigureRequest struct {
	Variables     []domain.VariableConfig `json:"variables"`
	InitialValues domain.InitialValues    `json:"initial_values"`
}

// SetValueRequest carries a user edit
type SetValueRequest struct {
	Value domain.Value `json:"value"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if s.health != nil {
		pool := s.health.GetStatus()
		body["checks"] = gin.H{
			"workers": gin.H{
				"total":          pool.TotalWorkers,
				"idle":           pool.IdleWorkers,
				"busy":           pool.BusyWorkers,
				"queue_depth":    pool.QueueDepth,
				"queue_capacity": pool.QueueCapacity,
			},
		}
		if !pool.Healthy {
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
		}
	}

	c.JSON(status, body)
}

// handleCreateSession creates a session and starts its first resolution cycle
func (s *Server) handleCreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	sess, err := s.sessions.CreateSession(c.Request.Context(), &orchestrator.CreateSessionRequest{
		Variables:     req.Variables,
		InitialValues: req.InitialValues,
		TimeRange:     req.TimeRange,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateSessionResponse{
		SessionID: sess.ID(),
		Snapshot:  sess.Snapshot(),
	})
}

// handleListSessions lists open and stored sessions
func (s *Server) handleListSessions(c *gin.Context) {
	ids, err := s.sessions.ListSessions(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": ids,
		"total":    len(ids),
	})
}

// handleGetSession returns the latest snapshot of a session
func (s *Server) handleGetSession(c *gin.Context) {
	snap, err := s.sessions.GetSnapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

// handleReconfigure replaces a session's variable set
func (s *Server) handleReconfigure(c *gin.Context) {
	var req ReconfigureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	sessionID := c.Param("id")
	if err := s.sessions.Reconfigure(c.Request.Context(), sessionID, req.Variables, req.InitialValues); err != nil {
		s.writeError(c, err)
		return
	}

	s.acceptedSnapshot(c, sessionID)
}

// handleSetTimeRange re-resolves every variable over a new time range
func (s *Server) handleSetTimeRange(c *gin.Context) {
	var tr domain.TimeRange
	if err := c.ShouldBindJSON(&tr); err != nil {
		s.badRequest(c, err)
		return
	}

	sessionID := c.Param("id")
	if err := s.sessions.SetTimeRange(c.Request.Context(), sessionID, tr); err != nil {
		s.writeError(c, err)
		return
	}

	s.acceptedSnapshot(c, sessionID)
}

// handleSetValue applies a user edit to one variable
func (s *Server) handleSetValue(c *gin.Context) {
	var req SetValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	sessionID := c.Param("id")
	if err := s.sessions.SetValue(c.Request.Context(), sessionID, c.Param("name"), req.Value); err != nil {
		s.writeError(c, err)
		return
	}

	s.acceptedSnapshot(c, sessionID)
}

// handleCloseSession closes a session
func (s *Server) handleCloseSession(c *gin.Context) {
	sessionID := c.Param("id")
	if err := s.sessions.CloseSession(c.Request.Context(), sessionID); err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"status":     "closed",
	})
}

// acceptedSnapshot answers a mutation with the snapshot taken right after
// it. Loads it started keep running; their results arrive on the stream.
func (s *Server) acceptedSnapshot(c *gin.Context, sessionID string) {
	snap, err := s.sessions.GetSnapshot(c.Request.Context(), sessionID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, snap)
}

func (s *Server) badRequest(c *gin.Context, err error) {
	s.logger.Debug("invalid request", zap.Error(err))
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		},
	})
}

// writeError maps domain errors to HTTP statuses
func (s *Server) writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"

	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		status, code = http.StatusNotFound, "SESSION_NOT_FOUND"
	case errors.Is(err, domain.ErrUnknownVariable):
		status, code = http.StatusNotFound, "VARIABLE_NOT_FOUND"
	case errors.Is(err, domain.ErrReadOnlyVariable):
		status, code = http.StatusConflict, "READ_ONLY_VARIABLE"
	case errors.Is(err, domain.ErrSessionClosed):
		status, code = http.StatusConflict, "SESSION_CLOSED"
	case errors.Is(err, domain.ErrValueShape):
		status, code = http.StatusUnprocessableEntity, "INVALID_VALUE"
	case errors.Is(err, depgraph.ErrCycle):
		status, code = http.StatusUnprocessableEntity, "DEPENDENCY_CYCLE"
	case errors.Is(err, domain.ErrDuplicateVariable),
		errors.Is(err, domain.ErrUnknownKind),
		errors.Is(err, domain.ErrInvalidConfig),
		errors.Is(err, domain.ErrInvalidTimeRange):
		status, code = http.StatusUnprocessableEntity, "INVALID_CONFIGURATION"
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}

	c.JSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: err.Error(),
		},
	})
}
