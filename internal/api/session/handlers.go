// Package session serves the map UI's session API: cascade selection, the
// layer list and its change stream, pixel query results, and viewport state.
// Every route acts on the single coordinator owned by the process.
package session

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rasterscope/rasterscope/internal/cascade"
	"github.com/rasterscope/rasterscope/internal/coordinator"
	"github.com/rasterscope/rasterscope/internal/layers"
	"github.com/rasterscope/rasterscope/internal/pixelquery"
)

// Handlers holds the session route handlers
type Handlers struct {
	coord *coordinator.Coordinator
}

// NewHandlers returns handlers acting on coord
func NewHandlers(coord *coordinator.Coordinator) *Handlers {
	return &Handlers{coord: coord}
}

// Register mounts every session route on rg
func (h *Handlers) Register(rg *gin.RouterGroup) {
	rg.GET("", h.GetView)

	rg.POST("/organisations/reload", h.ReloadOrganisations)
	rg.PUT("/organisation", h.SelectOrganisation)
	rg.DELETE("/organisation", h.ResetSelection)
	rg.PUT("/raster-file", h.SelectRasterFile)
	rg.DELETE("/raster-file", h.ClearRasterFile)

	rg.GET("/layers", h.GetLayers)
	rg.PUT("/layers", h.SetLayers)
	rg.GET("/layers/stream", h.StreamLayers)
	rg.POST("/layers/:id/visibility/toggle", h.ToggleVisibility)
	rg.PUT("/layers/:id/opacity", h.SetOpacity)
	rg.DELETE("/layers/:id", h.RemoveLayer)

	rg.POST("/pixel-queries", h.RecordPixelQuery)
	rg.GET("/pixel-queries", h.ListPixelQueries)
	rg.GET("/pixel-queries/:layer_id", h.GetPixelQuery)

	rg.PUT("/viewport", h.SetViewport)
	rg.POST("/sidebar/toggle", h.ToggleSidebar)
}

// @Summary      Get session view
// @Description  Returns viewport mode, sidebar state, cascade state, the layer snapshot and pixel query results.
// @Tags         Session
// @Produce      json
// @Success      200  {object}  coordinator.View
// @Router       /api/v1/session [get]
func (h *Handlers) GetView(c *gin.Context) {
	c.JSON(http.StatusOK, h.coord.View())
}

// ReloadOrganisations refetches the organisation listing. The fetch runs in
// the background; the response carries the cascade state right after it starts.
func (h *Handlers) ReloadOrganisations(c *gin.Context) {
	if err := h.coord.LoadOrganisations(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, h.coord.CascadeState())
}

type selectOrganisationRequest struct {
	Name string `json:"name"`
}

// @Summary      Select organisation
// @Description  Selects an organisation and starts loading its raster files. Clears the raster file and the layer list.
// @Tags         Session
// @Accept       json
// @Produce      json
// @Success      202  {object}  cascade.State
// @Failure      400  {object}  map[string]interface{}  "Missing organisation name"
// @Router       /api/v1/session/organisation [put]
func (h *Handlers) SelectOrganisation(c *gin.Context) {
	var req selectOrganisationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if err := h.coord.SelectOrganisation(req.Name); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, h.coord.CascadeState())
}

// ResetSelection clears the organisation, raster file and layers. The
// organisation listing is kept.
func (h *Handlers) ResetSelection(c *gin.Context) {
	if err := h.coord.Reset(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.coord.CascadeState())
}

type selectRasterFileRequest struct {
	ID string `json:"id"`
}

// @Summary      Select raster file
// @Description  Selects a raster file from the current listing. Its URL is resolved and the layer list replaced with one layer for it.
// @Tags         Session
// @Accept       json
// @Produce      json
// @Success      202  {object}  cascade.State
// @Failure      400  {object}  map[string]interface{}  "No organisation, listing not ready, or unknown raster file"
// @Router       /api/v1/session/raster-file [put]
func (h *Handlers) SelectRasterFile(c *gin.Context) {
	var req selectRasterFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if err := h.coord.SelectRasterFile(req.ID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, h.coord.CascadeState())
}

// ClearRasterFile drops the raster file selection and the layers derived from it
func (h *Handlers) ClearRasterFile(c *gin.Context) {
	if err := h.coord.ClearRasterFile(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.coord.CascadeState())
}

// respondError maps coordinator errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, cascade.ErrSelection),
		errors.Is(err, layers.ErrEmptyID),
		errors.Is(err, layers.ErrInvalidOpacity),
		errors.Is(err, pixelquery.ErrInvalidCoords),
		errors.Is(err, coordinator.ErrInvalidViewportMode):
		status = http.StatusBadRequest
	case errors.Is(err, pixelquery.ErrUnknownLayer):
		status = http.StatusNotFound
	case errors.Is(err, layers.ErrDuplicateID):
		status = http.StatusConflict
	case errors.Is(err, cascade.ErrClosed):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		slog.Error("session request failed", "path", c.FullPath(), "error", err)
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}
