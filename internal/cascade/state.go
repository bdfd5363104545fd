package cascade

import (
	"errors"
	"fmt"

	"github.com/rasterscope/rasterscope/internal/catalog"
)

// Status is the load state of one cascade level
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	// StatusEmpty is a successful fetch with nothing in it ("none available")
	StatusEmpty Status = "empty"
	StatusError Status = "error"
)

// Phase is the selection state of the cascade as a whole
type Phase string

const (
	PhaseNoOrganisation       Phase = "no_organisation"
	PhaseOrganisationSelected Phase = "organisation_selected"
	PhaseRasterFileSelected   Phase = "raster_file_selected"
)

// Cascade level names, used in logs and metric labels.
const (
	LevelOrganisations = "organisations"
	LevelRasterFiles   = "raster_files"
	LevelRasterURL     = "raster_url"
)

// Listing is one fetched list and its load state
type Listing[T any] struct {
	Status Status `json:"status"`
	Items  []T    `json:"items"`
	Error  string `json:"error,omitempty"`
	// Generation identifies the fetch that produced this listing
	Generation uint64 `json:"generation"`
}

func (l Listing[T]) clone() Listing[T] {
	out := l
	if l.Items != nil {
		out.Items = make([]T, len(l.Items))
		copy(out.Items, l.Items)
	}
	return out
}

// RasterState is the URL resolution state of the selected raster file
type RasterState struct {
	Status Status `json:"status"`
	// URL is the fetchable URL handed to the layer registry
	URL        string `json:"url,omitempty"`
	Error      string `json:"error,omitempty"`
	Generation uint64 `json:"generation"`
}

// State is a point-in-time copy of the cascade
type State struct {
	Phase                Phase                         `json:"phase"`
	Organisations        Listing[catalog.Organisation] `json:"organisations"`
	SelectedOrganisation string                        `json:"selected_organisation,omitempty"`
	RasterFiles          Listing[catalog.RasterFile]   `json:"raster_files"`
	SelectedRasterFile   string                        `json:"selected_raster_file,omitempty"`
	Raster               RasterState                   `json:"raster"`
}

func (s State) clone() State {
	out := s
	out.Organisations = s.Organisations.clone()
	out.RasterFiles = s.RasterFiles.clone()
	return out
}

// SelectedFile returns the descriptor of the selected raster file
func (s State) SelectedFile() (catalog.RasterFile, bool) {
	if s.SelectedRasterFile == "" {
		return catalog.RasterFile{}, false
	}
	for _, f := range s.RasterFiles.Items {
		if f.ID == s.SelectedRasterFile {
			return f, true
		}
	}
	return catalog.RasterFile{}, false
}

var (
	// ErrSelection matches every *SelectionError
	ErrSelection = errors.New("invalid selection")
	// ErrClosed is returned by operations on a closed cascade
	ErrClosed = errors.New("cascade is closed")
)

// SelectionKind says why a selection was rejected
type SelectionKind string

const (
	KindEmptyOrganisation SelectionKind = "empty_organisation"
	KindNoOrganisation    SelectionKind = "no_organisation"
	KindListingNotReady   SelectionKind = "listing_not_ready"
	KindUnknownRasterFile SelectionKind = "unknown_raster_file"
)

// SelectionError rejects a selection that does not fit the current state
type SelectionError struct {
	Kind  SelectionKind
	Value string
}

func (e *SelectionError) Error() string {
	switch e.Kind {
	case KindEmptyOrganisation:
		return "organisation name is required"
	case KindNoOrganisation:
		return fmt.Sprintf("cannot select raster file %q: no organisation selected", e.Value)
	case KindListingNotReady:
		return fmt.Sprintf("cannot select raster file %q: raster file listing is not ready", e.Value)
	case KindUnknownRasterFile:
		return fmt.Sprintf("raster file %q is not in the current listing", e.Value)
	default:
		return fmt.Sprintf("invalid selection %q", e.Value)
	}
}

// Is reports true for ErrSelection
func (e *SelectionError) Is(target error) bool {
	return target == ErrSelection
}
