// Package handlers implements the /api/v1 HTTP handlers.
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/netsweep/network-survey-agent/internal/services"
)

type Handler struct {
	surveySrv *services.SurveyService
	hostSrv   *services.HostService
}

func New(surveySrv *services.SurveyService, hostSrv *services.HostService) *Handler {
	return &Handler{
		surveySrv: surveySrv,
		hostSrv:   hostSrv,
	}
}

// Register mounts all v1 routes on the router group.
func (h *Handler) Register(router *gin.RouterGroup) {
	router.GET("/status", h.GetStatus)
	router.GET("/hosts", h.GetHosts)
	router.POST("/survey", h.StartSurvey)
	router.DELETE("/survey", h.CancelSurvey)
}
