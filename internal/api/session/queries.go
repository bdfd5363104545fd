package session

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type pixelQueryRequest struct {
	LayerID string    `json:"layer_id"`
	Coords  []float64 `json:"coords"`
	Value   *float64  `json:"value"`
	Error   string    `json:"error"`
}

// @Summary      Record pixel query
// @Description  Stores the outcome of a map click for one layer, replacing any earlier result for it. A null value with no error records "no data at this location".
// @Tags         Pixel queries
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]pixelquery.Result
// @Failure      400  {object}  map[string]interface{}  "Bad coordinates or missing layer id"
// @Failure      404  {object}  map[string]interface{}  "Unknown layer"
// @Router       /api/v1/session/pixel-queries [post]
func (h *Handlers) RecordPixelQuery(c *gin.Context) {
	var req pixelQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.LayerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "layer_id is required"})
		return
	}
	if len(req.Coords) != 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "coords must be [lon, lat]"})
		return
	}

	entries, err := h.coord.RecordQuery(req.LayerID, [2]float64{req.Coords[0], req.Coords[1]}, req.Value, req.Error)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// ListPixelQueries returns every recorded result keyed by layer id
func (h *Handlers) ListPixelQueries(c *gin.Context) {
	c.JSON(http.StatusOK, h.coord.Queries())
}

// GetPixelQuery returns the result recorded for one layer
func (h *Handlers) GetPixelQuery(c *gin.Context) {
	id := c.Param("layer_id")
	res, ok := h.coord.Query(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pixel query recorded for layer " + id})
		return
	}
	c.JSON(http.StatusOK, res)
}
