// Package coordinator ties the selection cascade, the layer registry and the
// pixel query ledger into one session, along with the viewport mode and
// sidebar state the map UI renders from.
package coordinator

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rasterscope/rasterscope/internal/cascade"
	"github.com/rasterscope/rasterscope/internal/config"
	"github.com/rasterscope/rasterscope/internal/layers"
	"github.com/rasterscope/rasterscope/internal/pixelquery"
)

// Options configures a Coordinator
type Options struct {
	Catalog cascade.Catalog
	// Resolver signs object-store raster references; nil uses URLs as-is
	Resolver cascade.URLResolver
	// ViewportMode defaults to desktop
	ViewportMode ViewportMode
	// EvictQueriesOnRemove drops ledger entries of layers leaving the registry
	EvictQueriesOnRemove bool
	// Clock stamps pixel queries; defaults to time.Now
	Clock func() time.Time
}

// View is everything a renderer needs to draw the session
type View struct {
	ViewportMode ViewportMode                 `json:"viewport_mode"`
	SidebarOpen  bool                         `json:"sidebar_open"`
	Cascade      cascade.State                `json:"cascade"`
	Layers       layers.Snapshot              `json:"layers"`
	PixelQueries map[string]pixelquery.Result `json:"pixel_queries"`
}

// Coordinator is one browsing session
type Coordinator struct {
	cascade     *cascade.Cascade
	registry    *layers.Registry
	ledger      *pixelquery.Ledger
	broadcaster *layers.Broadcaster
	evict       bool

	mu          sync.Mutex
	viewport    ViewportMode
	sidebarOpen bool
}

// New builds a coordinator. The organisation listing is not loaded until
// LoadOrganisations is called.
func New(opts Options) (*Coordinator, error) {
	mode := opts.ViewportMode
	if mode == "" {
		mode = ViewportDesktop
	}
	mode, err := ParseViewportMode(string(mode))
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		broadcaster: layers.NewBroadcaster(),
		evict:       opts.EvictQueriesOnRemove,
		viewport:    mode,
		sidebarOpen: mode.SidebarOpenByDefault(),
	}

	ledgerOpts := []pixelquery.Option{
		pixelquery.WithKnownLayers(func(id string) bool { return c.registry.Known(id) }),
	}
	if opts.Clock != nil {
		ledgerOpts = append(ledgerOpts, pixelquery.WithClock(opts.Clock))
	}
	c.ledger = pixelquery.NewLedger(ledgerOpts...)

	c.registry = layers.NewRegistry(
		layers.WithPublisher(c.broadcaster),
		layers.WithRemovalHook(c.layersRemoved),
	)

	var cascadeOpts []cascade.Option
	if opts.Resolver != nil {
		cascadeOpts = append(cascadeOpts, cascade.WithResolver(opts.Resolver))
	}
	c.cascade = cascade.New(opts.Catalog, c.registry, cascadeOpts...)

	// seed so the first subscriber sees version 0
	c.broadcaster.Publish(c.registry.Snapshot())

	return c, nil
}

// NewFromConfig builds a coordinator from the session section of cfg
func NewFromConfig(cfg *config.SessionConfig, cat cascade.Catalog, resolver cascade.URLResolver) (*Coordinator, error) {
	mode, err := ParseViewportMode(cfg.ViewportMode)
	if err != nil {
		return nil, err
	}
	return New(Options{
		Catalog:              cat,
		Resolver:             resolver,
		ViewportMode:         mode,
		EvictQueriesOnRemove: cfg.EvictQueriesOnRemove,
	})
}

// LoadOrganisations (re)fetches the organisation listing
func (c *Coordinator) LoadOrganisations() error {
	return c.cascade.LoadOrganisations()
}

// SelectOrganisation selects an organisation, clearing the raster selection and layers
func (c *Coordinator) SelectOrganisation(name string) error {
	return c.cascade.SelectOrganisation(name)
}

// SelectRasterFile selects a raster file from the current listing
func (c *Coordinator) SelectRasterFile(id string) error {
	return c.cascade.SelectRasterFile(id)
}

// ClearRasterFile drops the raster selection and its layer
func (c *Coordinator) ClearRasterFile() error {
	return c.cascade.ClearRasterFile()
}

// Reset clears the organisation selection and everything below it
func (c *Coordinator) Reset() error {
	return c.cascade.Reset()
}

// CascadeState returns the current selection state
func (c *Coordinator) CascadeState() cascade.State {
	return c.cascade.State()
}

// SetLayers replaces the layer list
func (c *Coordinator) SetLayers(l []layers.Layer) (layers.Snapshot, error) {
	return c.registry.SetLayers(l)
}

// ToggleVisibility flips a layer's visibility
func (c *Coordinator) ToggleVisibility(id string) (layers.Snapshot, bool) {
	return c.registry.ToggleVisibility(id)
}

// SetOpacity sets a layer's opacity, clamped to [0,1]
func (c *Coordinator) SetOpacity(id string, v float64) (layers.Snapshot, bool) {
	return c.registry.SetOpacity(id, v)
}

// RemoveLayer removes a layer
func (c *Coordinator) RemoveLayer(id string) (layers.Snapshot, bool) {
	return c.registry.RemoveLayer(id)
}

// Layers returns the current layer snapshot
func (c *Coordinator) Layers() layers.Snapshot {
	return c.registry.Snapshot()
}

// Subscribe follows layer snapshots; call cancel when done
func (c *Coordinator) Subscribe() (<-chan layers.Snapshot, func()) {
	return c.broadcaster.Subscribe()
}

// RecordQuery records a pixel query result from the map for layerID
func (c *Coordinator) RecordQuery(layerID string, coords [2]float64, value *float64, queryErr string) (map[string]pixelquery.Result, error) {
	return c.ledger.RecordQuery(layerID, coords, value, queryErr)
}

// Query returns the latest pixel query for layerID
func (c *Coordinator) Query(layerID string) (pixelquery.Result, bool) {
	return c.ledger.Get(layerID)
}

// Queries returns every recorded pixel query
func (c *Coordinator) Queries() map[string]pixelquery.Result {
	return c.ledger.Entries()
}

// SetViewportMode switches mode and resets the sidebar to the mode's default
func (c *Coordinator) SetViewportMode(mode ViewportMode) error {
	mode, err := ParseViewportMode(string(mode))
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewport = mode
	c.sidebarOpen = mode.SidebarOpenByDefault()
	slog.Debug("viewport mode set", "mode", mode, "sidebar_open", c.sidebarOpen)
	return nil
}

// ToggleSidebar flips the sidebar and returns the new state
func (c *Coordinator) ToggleSidebar() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sidebarOpen = !c.sidebarOpen
	return c.sidebarOpen
}

// View returns a consistent-enough picture of the whole session. Each part
// is a copy; parts are read one after another.
func (c *Coordinator) View() View {
	c.mu.Lock()
	mode, open := c.viewport, c.sidebarOpen
	c.mu.Unlock()

	return View{
		ViewportMode: mode,
		SidebarOpen:  open,
		Cascade:      c.cascade.State(),
		Layers:       c.registry.Snapshot(),
		PixelQueries: c.ledger.Entries(),
	}
}

// Wait blocks until every background fetch started so far has finished
func (c *Coordinator) Wait() {
	c.cascade.Wait()
}

// CloseSubscriptions ends every layer subscription, current and future,
// leaving the session itself usable. The server calls it when it starts
// draining.
func (c *Coordinator) CloseSubscriptions() {
	c.broadcaster.Close()
}

// Close stops background fetches and ends every layer subscription
func (c *Coordinator) Close() {
	c.cascade.Close()
	c.broadcaster.Close()
}

func (c *Coordinator) layersRemoved(ids []string) {
	if !c.evict {
		return
	}
	c.ledger.Evict(ids...)
}
