package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/policywatch/collector/internal/scheduler"
	"github.com/policywatch/collector/internal/store"
	"github.com/policywatch/collector/internal/types"
)

// TriggerHandler implements the Trigger API of §6: kick off a batch,
// poll its tasks, and cancel it. Grounded on the teacher's
// TopicsHandler{Store, LLM} + Register(*echo.Group) shape.
type TriggerHandler struct {
	Scheduler *scheduler.Scheduler
	Store     *store.Store
}

func (h *TriggerHandler) Register(g *echo.Group) {
	g.POST("/trigger", h.trigger)
	g.GET("", h.list)
	g.POST("/:batch_id/cancel", h.cancel)
}

type triggerRequest struct {
	SourceIDs   []string `json:"source_ids"`
	TriggerKind string   `json:"trigger_kind"`
}

type triggerResponse struct {
	BatchID string `json:"batch_id"`
}

func (h *TriggerHandler) trigger(c echo.Context) error {
	var req triggerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	kind := types.TriggerManual
	if req.TriggerKind == string(types.TriggerScheduled) {
		kind = types.TriggerScheduled
	}

	batch, err := h.Scheduler.Trigger(c.Request().Context(), req.SourceIDs, kind)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, triggerResponse{BatchID: batch.ID})
}

func (h *TriggerHandler) list(c echo.Context) error {
	batchID := c.QueryParam("batch_id")
	if batchID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "batch_id is required")
	}
	tasks, err := h.Store.ListTasks(c.Request().Context(), batchID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, tasks)
}

func (h *TriggerHandler) cancel(c echo.Context) error {
	batchID := c.Param("batch_id")
	if !h.Scheduler.Cancel(batchID) {
		return echo.NewHTTPError(http.StatusNotFound, "batch not found or already finished")
	}
	return c.NoContent(http.StatusAccepted)
}
