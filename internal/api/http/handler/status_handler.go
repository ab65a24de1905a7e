// Package handler implements the read-only endpoints of the status server.
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openeeap/nmtrl/internal/domain/run"
	"github.com/openeeap/nmtrl/internal/observability/logging"
	"github.com/openeeap/nmtrl/internal/platform/training/checkpoint"
	"github.com/openeeap/nmtrl/pkg/errors"
	"github.com/openeeap/nmtrl/pkg/types"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusHandler serves the live run status and, when configured, the
// persisted run history and checkpoint listings.
type StatusHandler struct {
	board       *run.Board
	statuses    run.StatusRepository
	ledger      run.CheckpointLedger
	checkpoints *checkpoint.Manager
	version     string
	started     time.Time
	logger      logging.Logger
}

// Options lists the optional backends of a StatusHandler.
type Options struct {
	Statuses    run.StatusRepository
	Ledger      run.CheckpointLedger
	Checkpoints *checkpoint.Manager
	Version     string
	Logger      logging.Logger
}

// NewStatusHandler creates a handler reading the live status from board.
func NewStatusHandler(board *run.Board, opts Options) *StatusHandler {
	if opts.Logger == nil {
		opts.Logger = logging.NewNoopLogger()
	}
	return &StatusHandler{
		board:       board,
		statuses:    opts.Statuses,
		ledger:      opts.Ledger,
		checkpoints: opts.Checkpoints,
		version:     opts.Version,
		started:     time.Now(),
		logger:      opts.Logger,
	}
}

// Root handles GET /
func (h *StatusHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "nmtrl",
		"version": h.version,
		"uptime":  time.Since(h.started).String(),
	})
}

// Live handles GET /health/live
func (h *StatusHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles GET /health/ready. It reports 503 before the first event
// and after a failed run.
func (h *StatusHandler) Ready(c *gin.Context) {
	s := h.board.Snapshot()
	code := http.StatusOK
	if s.State == "" || s.State == types.RunStatusFailed {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"state": s.State, "run_id": s.RunID, "error": s.Error})
}

// Current handles GET /api/v1/status
func (h *StatusHandler) Current(c *gin.Context) {
	c.JSON(http.StatusOK, h.board.Snapshot())
}

// ListRuns handles GET /api/v1/runs
func (h *StatusHandler) ListRuns(c *gin.Context) {
	if h.statuses == nil {
		h.unavailable(c, "run history")
		return
	}
	ids, err := h.statuses.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": ids})
}

// GetRun handles GET /api/v1/runs/:id
func (h *StatusHandler) GetRun(c *gin.Context) {
	id := c.Param("id")
	if live := h.board.Snapshot(); live.RunID == id {
		c.JSON(http.StatusOK, live)
		return
	}
	if h.statuses == nil {
		h.fail(c, errors.NotFoundError("run "+id))
		return
	}
	s, err := h.statuses.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// RunCheckpoints handles GET /api/v1/runs/:id/checkpoints
func (h *StatusHandler) RunCheckpoints(c *gin.Context) {
	if h.ledger == nil {
		h.unavailable(c, "checkpoint ledger")
		return
	}
	id := c.Param("id")
	recs, err := h.ledger.ListByRun(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	resp := gin.H{"run_id": id, "checkpoints": recs}
	if best, err := h.ledger.Best(c.Request.Context(), id); err == nil {
		resp["best"] = best
	}
	c.JSON(http.StatusOK, resp)
}

// StoredCheckpoints handles GET /api/v1/checkpoints
func (h *StatusHandler) StoredCheckpoints(c *gin.Context) {
	if h.checkpoints == nil {
		h.unavailable(c, "checkpoint storage")
		return
	}
	infos, err := h.checkpoints.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"policy": h.checkpoints.Policy(), "checkpoints": infos})
}

func (h *StatusHandler) unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusNotImplemented, ErrorResponse{
		Code:    "NOT_CONFIGURED",
		Message: what + " is not configured",
	})
}

func (h *StatusHandler) fail(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.IsType(err, errors.ErrorTypeNotFound):
		code = http.StatusNotFound
	case errors.IsType(err, errors.ErrorTypeValidation):
		code = http.StatusBadRequest
	default:
		h.logger.WithContext(c.Request.Context()).Error("Status request failed",
			logging.String("path", c.Request.URL.Path), logging.Error(err))
	}
	c.JSON(code, ErrorResponse{Code: errors.GetCode(err), Message: err.Error()})
}

//Personal.AI order the ending
