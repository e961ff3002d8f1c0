package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	v1 "github.com/netsweep/network-survey-agent/api/v1"
	srvErrors "github.com/netsweep/network-survey-agent/pkg/errors"
)

// GetStatus returns the current (or last) survey state with live progress
// (GET /status)
func (h *Handler) GetStatus(c *gin.Context) {
	status := h.surveySrv.Status()
	progress := h.surveySrv.Progress()

	c.JSON(http.StatusOK, v1.NewSurveyStatus(status, progress))
}

// StartSurvey launches a new survey run
// (POST /survey)
func (h *Handler) StartSurvey(c *gin.Context) {
	id, err := h.surveySrv.Start(c.Request.Context())
	if err != nil {
		if srvErrors.IsSurveyAlreadyRunningError(err) {
			c.JSON(http.StatusConflict, v1.Error{Message: err.Error()})
			return
		}
		zap.S().Named("survey_handler").Errorw("failed to start survey", "error", err)
		c.JSON(http.StatusInternalServerError, v1.Error{Message: "failed to start survey"})
		return
	}

	c.JSON(http.StatusAccepted, v1.SurveyCreated{ID: id})
}

// CancelSurvey requests cancellation of the running survey
// (DELETE /survey)
func (h *Handler) CancelSurvey(c *gin.Context) {
	h.surveySrv.Cancel()
	c.Status(http.StatusAccepted)
}
