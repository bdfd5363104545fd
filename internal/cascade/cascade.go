// Package cascade owns the dependent selections organisation → raster file →
// raster URL and the asynchronous catalog fetches behind them.
//
// Each level carries a generation counter. Starting a fetch bumps its level's
// generation (and every level below it), and a completion is applied only if
// its generation is still current; superseded fetches run to completion and
// their results are dropped.
package cascade

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/rasterscope/rasterscope/internal/catalog"
	"github.com/rasterscope/rasterscope/internal/layers"
	"github.com/rasterscope/rasterscope/internal/safego"
	"github.com/rasterscope/rasterscope/internal/storage"
	"github.com/rasterscope/rasterscope/internal/telemetry"
)

// Catalog is the remote catalog as the cascade consumes it
type Catalog interface {
	FetchOrganisations(ctx context.Context) ([]catalog.Organisation, error)
	FetchRasterFiles(ctx context.Context, organisationName string) ([]catalog.RasterFile, error)
	ResolveRasterURL(ctx context.Context, rasterFileID string) (string, error)
}

// URLResolver turns a raw raster URL or object reference into a fetchable URL
type URLResolver interface {
	Resolve(ctx context.Context, raw string) (string, error)
}

// LayerSink receives the layer list produced by a raster selection
type LayerSink interface {
	SetLayers(layers []layers.Layer) (layers.Snapshot, error)
}

// Option configures a Cascade
type Option func(*Cascade)

// WithResolver sets the resolver for raster URLs. Without one, URLs are used as-is.
func WithResolver(r URLResolver) Option {
	return func(c *Cascade) { c.resolver = r }
}

// Cascade serializes selections and applies fetch results in generation order
type Cascade struct {
	catalog  Catalog
	resolver URLResolver
	sink     LayerSink

	mu        sync.Mutex
	state     State
	orgGen    uint64
	filesGen  uint64
	rasterGen uint64
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a cascade in the NoOrganisation phase
func New(cat Catalog, sink LayerSink, opts ...Option) *Cascade {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cascade{
		catalog: cat,
		sink:    sink,
		ctx:     ctx,
		cancel:  cancel,
		state: State{
			Phase:         PhaseNoOrganisation,
			Organisations: Listing[catalog.Organisation]{Status: StatusIdle},
			RasterFiles:   Listing[catalog.RasterFile]{Status: StatusIdle},
			Raster:        RasterState{Status: StatusIdle},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns a copy of the current state
func (c *Cascade) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// LoadOrganisations (re)fetches the organisation listing. It does not touch
// the current selection.
func (c *Cascade) LoadOrganisations() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	c.orgGen++
	gen := c.orgGen
	c.state.Organisations = Listing[catalog.Organisation]{Status: StatusLoading, Generation: gen}
	transition(LevelOrganisations, StatusLoading)

	c.spawn("load organisations", func(ctx context.Context) {
		orgs, err := c.catalog.FetchOrganisations(ctx)

		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.orgGen {
			stale(LevelOrganisations, gen, c.orgGen)
			return
		}
		c.state.Organisations = finishListing(LevelOrganisations, gen, orgs, err)
	})
	return nil
}

// SelectOrganisation makes name the current organisation, clears the raster
// file selection and all layers, and fetches the organisation's raster files.
// Any fetch still running for a previous selection is superseded.
func (c *Cascade) SelectOrganisation(name string) error {
	if strings.TrimSpace(name) == "" {
		return &SelectionError{Kind: KindEmptyOrganisation}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	c.filesGen++
	c.rasterGen++
	gen := c.filesGen

	c.state.SelectedOrganisation = name
	c.state.RasterFiles = Listing[catalog.RasterFile]{Status: StatusLoading, Generation: gen}
	c.clearRasterLocked()
	transition(LevelRasterFiles, StatusLoading)
	slog.Info("organisation selected", "organisation", name, "generation", gen)

	c.spawn("load raster files", func(ctx context.Context) {
		files, err := c.catalog.FetchRasterFiles(ctx, name)

		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.filesGen {
			stale(LevelRasterFiles, gen, c.filesGen)
			return
		}
		c.state.RasterFiles = finishListing(LevelRasterFiles, gen, files, err)
	})
	return nil
}

// SelectRasterFile selects id from the current listing and materializes it as
// the only layer. A descriptor that already carries a direct URL is applied
// before returning; otherwise the URL is looked up and resolved in the
// background.
func (c *Cascade) SelectRasterFile(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	if c.state.SelectedOrganisation == "" {
		return &SelectionError{Kind: KindNoOrganisation, Value: id}
	}
	if c.state.RasterFiles.Status != StatusReady {
		return &SelectionError{Kind: KindListingNotReady, Value: id}
	}
	idx := -1
	for i, f := range c.state.RasterFiles.Items {
		if f.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &SelectionError{Kind: KindUnknownRasterFile, Value: id}
	}
	desc := c.state.RasterFiles.Items[idx]

	c.rasterGen++
	gen := c.rasterGen
	c.state.SelectedRasterFile = id
	c.state.Phase = PhaseRasterFileSelected
	c.state.Raster = RasterState{Status: StatusLoading, Generation: gen}
	transition(LevelRasterURL, StatusLoading)
	slog.Info("raster file selected", "raster_file_id", id, "generation", gen)

	if desc.URL != "" && (c.resolver == nil || storage.IsDirectURL(desc.URL)) {
		c.applyRasterLocked(gen, desc, desc.URL)
		return nil
	}

	// the previous raster's layer stays in place until the new URL settles;
	// a failed resolution leaves it as the last-known-good layer
	c.spawn("resolve raster url", func(ctx context.Context) {
		raw := desc.URL
		var err error
		if raw == "" {
			raw, err = c.catalog.ResolveRasterURL(ctx, desc.ID)
		}
		fetchable := raw
		if err == nil && c.resolver != nil {
			fetchable, err = c.resolver.Resolve(ctx, raw)
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.rasterGen {
			stale(LevelRasterURL, gen, c.rasterGen)
			return
		}
		if err != nil {
			c.failRasterLocked(gen, err)
			return
		}
		// cache the raw reference on the descriptor; a later selection of the
		// same file skips the catalog lookup
		for i := range c.state.RasterFiles.Items {
			if c.state.RasterFiles.Items[i].ID == desc.ID {
				c.state.RasterFiles.Items[i].URL = raw
			}
		}
		c.applyRasterLocked(gen, desc, fetchable)
	})
	return nil
}

// ClearRasterFile drops the raster file selection and all layers, keeping the
// organisation and its listing.
func (c *Cascade) ClearRasterFile() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.rasterGen++
	c.clearRasterLocked()
	return nil
}

// Reset returns to the NoOrganisation phase. The organisation listing is kept.
func (c *Cascade) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.filesGen++
	c.rasterGen++
	c.state.SelectedOrganisation = ""
	c.state.RasterFiles = Listing[catalog.RasterFile]{Status: StatusIdle, Generation: c.filesGen}
	c.clearRasterLocked()
	slog.Info("selection reset")
	return nil
}

// Wait blocks until every fetch started so far has finished
func (c *Cascade) Wait() {
	c.wg.Wait()
}

// Close cancels in-flight fetches, waits for them and rejects further
// operations.
func (c *Cascade) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// spawn runs fn in the background with the cascade's base context
func (c *Cascade) spawn(task string, fn func(ctx context.Context)) {
	c.wg.Add(1)
	safego.Go(task, func() {
		defer c.wg.Done()
		fn(c.ctx)
	})
}

// clearRasterLocked empties the raster selection and the layer list
func (c *Cascade) clearRasterLocked() {
	c.state.SelectedRasterFile = ""
	c.state.Raster = RasterState{Status: StatusIdle, Generation: c.rasterGen}
	if c.state.SelectedOrganisation == "" {
		c.state.Phase = PhaseNoOrganisation
	} else {
		c.state.Phase = PhaseOrganisationSelected
	}
	c.clearLayersLocked()
}

func (c *Cascade) clearLayersLocked() {
	if _, err := c.sink.SetLayers(nil); err != nil {
		slog.Error("failed to clear layers", "error", err)
	}
}

func (c *Cascade) applyRasterLocked(gen uint64, desc catalog.RasterFile, url string) {
	layer := layers.Layer{
		ID:      desc.ID,
		Name:    desc.Name,
		Visible: true,
		URL:     url,
		Opacity: 1,
	}
	if _, err := c.sink.SetLayers([]layers.Layer{layer}); err != nil {
		c.failRasterLocked(gen, err)
		return
	}
	c.state.Raster = RasterState{Status: StatusReady, URL: url, Generation: gen}
	transition(LevelRasterURL, StatusReady)
	slog.Debug("raster layer materialized", "raster_file_id", desc.ID, "generation", gen)
}

func (c *Cascade) failRasterLocked(gen uint64, err error) {
	c.state.Raster = RasterState{Status: StatusError, Error: err.Error(), Generation: gen}
	transition(LevelRasterURL, StatusError)
	slog.Warn("raster url resolution failed", "raster_file_id", c.state.SelectedRasterFile, "error", err)
}

// finishListing turns a fetch outcome into a settled listing
func finishListing[T any](level string, gen uint64, items []T, err error) Listing[T] {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Debug("fetch cancelled", "level", level, "generation", gen)
		} else {
			slog.Warn("fetch failed", "level", level, "generation", gen, "error", err)
		}
		transition(level, StatusError)
		return Listing[T]{Status: StatusError, Error: err.Error(), Generation: gen}
	}
	if len(items) == 0 {
		transition(level, StatusEmpty)
		return Listing[T]{Status: StatusEmpty, Items: []T{}, Generation: gen}
	}
	transition(level, StatusReady)
	return Listing[T]{Status: StatusReady, Items: items, Generation: gen}
}

func transition(level string, status Status) {
	telemetry.CascadeTransitionsTotal.WithLabelValues(level, string(status)).Inc()
}

func stale(level string, gen, current uint64) {
	telemetry.CascadeStaleResultsTotal.WithLabelValues(level).Inc()
	slog.Debug("discarding stale fetch result", "level", level, "generation", gen, "current", current)
}
