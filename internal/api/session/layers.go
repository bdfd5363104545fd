package session

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rasterscope/rasterscope/internal/layers"
)

// layerEvent names the server-sent event carrying a layer snapshot
const layerEvent = "layers"

// layerRequest is one entry of PUT /layers. Visible and opacity default to
// true and 1 when omitted.
type layerRequest struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Visible *bool    `json:"visible"`
	URL     string   `json:"url"`
	Opacity *float64 `json:"opacity"`
}

func (r layerRequest) layer() layers.Layer {
	l := layers.Layer{ID: r.ID, Name: r.Name, URL: r.URL, Visible: true, Opacity: 1}
	if r.Visible != nil {
		l.Visible = *r.Visible
	}
	if r.Opacity != nil {
		l.Opacity = *r.Opacity
	}
	return l
}

type setLayersRequest struct {
	Layers []layerRequest `json:"layers"`
}

type opacityRequest struct {
	Opacity *float64 `json:"opacity"`
}

// GetLayers returns the current layer snapshot
func (h *Handlers) GetLayers(c *gin.Context) {
	c.JSON(http.StatusOK, h.coord.Layers())
}

// @Summary      Replace layers
// @Description  Replaces the whole layer list. Ids must be unique; opacity is clamped to [0,1].
// @Tags         Layers
// @Accept       json
// @Produce      json
// @Success      200  {object}  layers.Snapshot
// @Failure      400  {object}  map[string]interface{}  "Missing layer id"
// @Failure      409  {object}  map[string]interface{}  "Duplicate layer id"
// @Router       /api/v1/session/layers [put]
func (h *Handlers) SetLayers(c *gin.Context) {
	var req setLayersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	next := make([]layers.Layer, len(req.Layers))
	for i, l := range req.Layers {
		next[i] = l.layer()
	}

	snap, err := h.coord.SetLayers(next)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// ToggleVisibility flips one layer's visibility. An unknown id leaves the
// layers unchanged and still answers with the current snapshot.
func (h *Handlers) ToggleVisibility(c *gin.Context) {
	snap, _ := h.coord.ToggleVisibility(c.Param("id"))
	c.JSON(http.StatusOK, snap)
}

// SetOpacity sets one layer's opacity, clamped to [0,1]
func (h *Handlers) SetOpacity(c *gin.Context) {
	var req opacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.Opacity == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "opacity is required"})
		return
	}

	snap, _ := h.coord.SetOpacity(c.Param("id"), *req.Opacity)
	c.JSON(http.StatusOK, snap)
}

// RemoveLayer deletes one layer
func (h *Handlers) RemoveLayer(c *gin.Context) {
	snap, _ := h.coord.RemoveLayer(c.Param("id"))
	c.JSON(http.StatusOK, snap)
}

// @Summary      Stream layer snapshots
// @Description  Server-sent events. The current snapshot is sent first, then every newer one. Slow readers skip to the latest.
// @Tags         Layers
// @Produce      text/event-stream
// @Success      200  {object}  layers.Snapshot
// @Router       /api/v1/session/layers/stream [get]
func (h *Handlers) StreamLayers(c *gin.Context) {
	updates, cancel := h.coord.Subscribe()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case snap, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent(layerEvent, snap)
			return true
		}
	})
}
