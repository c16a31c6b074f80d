package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"thermosync/internal/ojcloud"
	"thermosync/internal/service"
)

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
func formatInt(v int) string       { return strconv.Itoa(v) }
func formatBool(v bool) string     { return strconv.FormatBool(v) }

func (h *Handler) listThermostats(c *gin.Context) {
	views, err := h.services.Snapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"thermostats": views})
}

func (h *Handler) getThermostat(c *gin.Context) {
	serial := c.Param("serial")

	view, err := h.services.Device(c.Request.Context(), serial)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown thermostat"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, view)
}

// applyRequest carries one mode change. Fields not relevant to the mode are ignored.
type applyRequest struct {
	Mode        string   `json:"mode" binding:"required"`
	Setpoint    *float64 `json:"setpoint,omitempty"`
	Duration    *int     `json:"duration,omitempty"`
	Enabled     *bool    `json:"enabled,omitempty"`
	BeginDay    *string  `json:"begin_day,omitempty"`
	EndDay      *string  `json:"end_day,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Value       *string  `json:"value,omitempty"`
}

func (r applyRequest) fields() map[string]string {
	out := map[string]string{}
	if r.Setpoint != nil {
		out["setpoint"] = formatFloat(*r.Setpoint)
	}
	if r.Duration != nil {
		out["duration"] = formatInt(*r.Duration)
	}
	if r.Enabled != nil {
		out["enabled"] = formatBool(*r.Enabled)
	}
	if r.BeginDay != nil {
		out["begin_day"] = *r.BeginDay
	}
	if r.EndDay != nil {
		out["end_day"] = *r.EndDay
	}
	if r.Temperature != nil {
		out["temperature"] = formatFloat(*r.Temperature)
	}
	if r.Value != nil {
		out["value"] = *r.Value
	}
	return out
}

func (h *Handler) applyThermostat(c *gin.Context) {
	serial := c.Param("serial")

	var input applyRequest
	if ok := h.bindJSONOrBadRequest(c, &input); !ok {
		return
	}

	ctx := c.Request.Context()
	mode := service.ApplyMode(input.Mode)

	if err := h.services.Stage(ctx, serial, mode, input.fields()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.services.Apply(ctx, serial, mode); err != nil {
		status := http.StatusInternalServerError
		var bizErr *ojcloud.BusinessError
		switch {
		case errors.Is(err, service.ErrDeviceUnknown):
			status = http.StatusNotFound
		case errors.Is(err, service.ErrDeviceOffline):
			status = http.StatusConflict
		case errors.As(err, &bizErr):
			status = http.StatusBadGateway
		case ojcloud.IsCommunication(err):
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "applied", "serial": serial, "mode": input.Mode})
}

func (h *Handler) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Status())
}

func (h *Handler) triggerPoll(c *gin.Context) {
	if err := h.services.RunCycle(c.Request.Context()); err != nil {
		if errors.Is(err, service.ErrCycleInFlight) {
			c.JSON(http.StatusConflict, gin.H{"error": "poll cycle already in flight"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "polled"})
}
