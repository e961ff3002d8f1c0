package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	v1 "github.com/netsweep/network-survey-agent/api/v1"
	"github.com/netsweep/network-survey-agent/internal/services"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// GetHosts returns the host inventory with filtering and pagination
// (GET /hosts)
func (h *Handler) GetHosts(c *gin.Context) {
	// Parse pagination
	page := 1
	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		page = v
	}
	pageSize := defaultPageSize
	if v, err := strconv.Atoi(c.Query("pageSize")); err == nil && v > 0 {
		pageSize = v
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}
	}

	// Build service params
	svcParams := services.HostListParams{
		OSClasses: c.QueryArray("osClass"),
		Subnets:   c.QueryArray("subnet"),
		SurveyID:  c.Query("survey"),
		Limit:     uint64(pageSize),
		Offset:    uint64((page - 1) * pageSize),
	}
	if v := c.Query("reachable"); v != "" {
		reachable := v == "true"
		svcParams.Reachable = &reachable
	}

	result, err := h.hostSrv.List(c.Request.Context(), svcParams)
	if err != nil {
		zap.S().Named("host_handler").Errorw("failed to list hosts", "error", err)
		c.JSON(http.StatusInternalServerError, v1.Error{Message: "failed to list hosts"})
		return
	}

	// Calculate page count
	pageCount := (result.Total + pageSize - 1) / pageSize
	if pageCount == 0 {
		pageCount = 1
	}

	// Map to API response
	apiHosts := make([]v1.Host, 0, len(result.Hosts))
	for _, host := range result.Hosts {
		apiHosts = append(apiHosts, v1.NewHostFromModel(host))
	}

	c.JSON(http.StatusOK, v1.HostList{
		Hosts: apiHosts,
		Total: result.Total,
		Page:  page,
		Pages: pageCount,
	})
}
