// Package layers owns the list of raster overlay layers shown on the map.
//
// Every mutation replaces the current Snapshot wholesale: the slice inside a
// published Snapshot is never written again, so a renderer may hold on to it
// and compare Version numbers to detect change.
package layers

import (
	"errors"
	"math"
)

var (
	// ErrDuplicateID is returned when SetLayers receives two layers with one id
	ErrDuplicateID = errors.New("duplicate layer id")
	// ErrEmptyID is returned when SetLayers receives a layer without an id
	ErrEmptyID = errors.New("layer id is required")
	// ErrInvalidOpacity is returned when SetLayers receives a NaN opacity
	ErrInvalidOpacity = errors.New("layer opacity is not a number")
)

// Layer is a renderable overlay derived from a selected raster file
type Layer struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Visible bool    `json:"visible"`
	URL     string  `json:"url,omitempty"`
	Opacity float64 `json:"opacity"`
}

// Snapshot is an immutable view of the layer list. Layers is in render order.
type Snapshot struct {
	Version uint64  `json:"version"`
	Layers  []Layer `json:"layers"`
}

// Len returns the number of layers
func (s Snapshot) Len() int {
	return len(s.Layers)
}

// Find returns the layer with id
func (s Snapshot) Find(id string) (Layer, bool) {
	for _, l := range s.Layers {
		if l.ID == id {
			return l, true
		}
	}
	return Layer{}, false
}

// ClampOpacity limits v to [0,1]. NaN is returned unchanged.
func ClampOpacity(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return v
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
