package webserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	agentcore "github.com/stake-plus/osintops/src/agents/core"
	"github.com/stake-plus/osintops/src/consolidate"
	"github.com/stake-plus/osintops/src/investigations"
	"github.com/stake-plus/osintops/src/shared/osint"
	"github.com/stake-plus/osintops/src/tracing"
)

// Service is the investigation façade the handlers call.
type Service interface {
	Submit(ctx context.Context, req investigations.Request) (investigations.Ack, error)
	Status(ctx context.Context, id string) (investigations.StatusView, error)
	Cancel(ctx context.Context, id string) error
	Report(ctx context.Context, id string) (osint.Report, error)
	Traces(ctx context.Context, id string, after uint64) ([]tracing.Event, error)
	List(ctx context.Context, limit int) ([]osint.Investigation, error)
	Purge(ctx context.Context, id string) error
	Agents() []agentcore.Descriptor
}

type Investigations struct {
	svc Service
}

type createRequest struct {
	InvestigationID string `json:"investigationId" binding:"max=64"`
	Target          struct {
		Type  string `json:"type" binding:"required"`
		Value string `json:"value" binding:"required,max=512"`
	} `json:"target"`
	Scope           []string `json:"scope" binding:"max=16"`
	DeadlineSeconds int      `json:"deadlineSeconds" binding:"min=0"`
	Notes           string   `json:"notes" binding:"max=2000"`
}

func (h Investigations) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	targetType, err := osint.ParseTargetType(req.Target.Type)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	requestedBy := c.GetHeader("X-Operator")
	if requestedBy == "" {
		requestedBy = "api:" + c.ClientIP()
	}
	ack, err := h.svc.Submit(c.Request.Context(), investigations.Request{
		InvestigationID: req.InvestigationID,
		Target:          osint.Target{Type: targetType, Value: req.Target.Value},
		Scope:           req.Scope,
		Deadline:        time.Duration(req.DeadlineSeconds) * time.Second,
		RequestedBy:     requestedBy,
		Notes:           req.Notes,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, ack)
}

func (h Investigations) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, err := h.svc.List(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"investigations": list})
}

func (h Investigations) Status(c *gin.Context) {
	view, err := h.svc.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h Investigations) Report(c *gin.Context) {
	report, err := h.svc.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if c.Query("format") == "markdown" {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(consolidate.RenderMarkdown(report, 0)))
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h Investigations) Traces(c *gin.Context) {
	after, err := strconv.ParseUint(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "after must be a non-negative integer"})
		return
	}
	events, err := h.svc.Traces(c.Request.Context(), c.Param("id"), after)
	if err != nil {
		writeError(c, err)
		return
	}
	if events == nil {
		events = []tracing.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h Investigations) Cancel(c *gin.Context) {
	if err := h.svc.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"investigationId": c.Param("id"), "status": "cancelling"})
}

func (h Investigations) Purge(c *gin.Context) {
	if err := h.svc.Purge(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Investigations) Agents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": h.svc.Agents()})
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, osint.ErrUnsupportedTarget):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, osint.ErrInvalidTarget), errors.Is(err, investigations.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, osint.ErrDuplicateInvestigation), errors.Is(err, investigations.ErrAlreadyTerminal):
		status = http.StatusConflict
	case errors.Is(err, osint.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, osint.ErrInvestigationNotTerminal):
		status = http.StatusNotFound
	case errors.Is(err, osint.ErrStoreUnavailable), errors.Is(err, investigations.ErrShuttingDown):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"err": err.Error()})
}
