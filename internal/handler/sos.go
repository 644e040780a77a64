package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"FarmLink/pkg/errors"
	"FarmLink/pkg/geo"
	"FarmLink/pkg/middleware"
	"FarmLink/pkg/response"
)

type triggerSOSRequest struct {
	Location *geo.Point `json:"location"`
	Message  string     `json:"message"`
}

func (h *Handlers) handleTriggerSOS(c *gin.Context) {
	var req triggerSOSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FailWithStatus(c, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := middleware.CurrentUserID(c)
	alert, err := h.coordinator.TriggerSOS(c.Request.Context(), userID, req.Location, req.Message)
	if err != nil {
		if errors.GetCode(err) == errors.CodeBadRequest {
			response.FailWithStatus(c, http.StatusBadRequest, err.Error())
			return
		}
		response.FailWithStatus(c, http.StatusInternalServerError, "failed to create alert")
		return
	}

	response.Success(c, "success", gin.H{"alert": alert})
}

func (h *Handlers) handleListSOS(c *gin.Context) {
	userID := middleware.CurrentUserID(c)
	alerts, err := h.coordinator.RecentAlerts(userID)
	if err != nil {
		response.FailWithStatus(c, http.StatusInternalServerError, "failed to list alerts")
		return
	}

	response.Success(c, "success", gin.H{"alerts": alerts})
}

func (h *Handlers) handleResolveSOS(c *gin.Context) {
	alertID := cast.ToUint(c.Param("alertId"))
	if alertID == 0 {
		response.FailWithStatus(c, http.StatusBadRequest, "invalid alert id")
		return
	}

	userID := middleware.CurrentUserID(c)
	alert, err := h.coordinator.ResolveSOS(alertID, userID)
	if err != nil {
		if errors.IsNotFound(err) {
			response.FailWithStatus(c, http.StatusNotFound, "alert not found")
			return
		}
		response.FailWithStatus(c, http.StatusInternalServerError, "failed to resolve alert")
		return
	}

	response.Success(c, "success", gin.H{"alert": alert})
}
