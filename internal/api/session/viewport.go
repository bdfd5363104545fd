package session

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rasterscope/rasterscope/internal/coordinator"
)

type viewportRequest struct {
	Mode string `json:"mode"`
}

type viewportResponse struct {
	ViewportMode coordinator.ViewportMode `json:"viewport_mode"`
	SidebarOpen  bool                     `json:"sidebar_open"`
}

// SetViewport switches between desktop and mobile. The sidebar returns to
// the new mode's default.
func (h *Handlers) SetViewport(c *gin.Context) {
	var req viewportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if err := h.coord.SetViewportMode(coordinator.ViewportMode(req.Mode)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.viewport())
}

// ToggleSidebar opens or closes the sidebar
func (h *Handlers) ToggleSidebar(c *gin.Context) {
	h.coord.ToggleSidebar()
	c.JSON(http.StatusOK, h.viewport())
}

func (h *Handlers) viewport() viewportResponse {
	v := h.coord.View()
	return viewportResponse{ViewportMode: v.ViewportMode, SidebarOpen: v.SidebarOpen}
}
