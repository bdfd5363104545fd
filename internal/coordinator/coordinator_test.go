package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rasterscope/rasterscope/internal/cascade"
	"github.com/rasterscope/rasterscope/internal/catalog"
	"github.com/rasterscope/rasterscope/internal/config"
	"github.com/rasterscope/rasterscope/internal/layers"
	"github.com/rasterscope/rasterscope/internal/pixelquery"
)

// stubCatalog answers immediately from fixed data
type stubCatalog struct {
	orgs  []catalog.Organisation
	files map[string][]catalog.RasterFile
}

func (s *stubCatalog) FetchOrganisations(context.Context) ([]catalog.Organisation, error) {
	return s.orgs, nil
}

func (s *stubCatalog) FetchRasterFiles(_ context.Context, org string) ([]catalog.RasterFile, error) {
	files, ok := s.files[org]
	if !ok {
		return nil, &catalog.NetworkError{Op: catalog.OpListRasterFiles, StatusCode: 404, Message: "Not Found"}
	}
	out := make([]catalog.RasterFile, len(files))
	copy(out, files)
	return out, nil
}

func (s *stubCatalog) ResolveRasterURL(_ context.Context, id string) (string, error) {
	return "http://x/" + id + ".tif", nil
}

func newStubCatalog() *stubCatalog {
	return &stubCatalog{
		orgs: []catalog.Organisation{{ID: "o1", Name: "Org A"}},
		files: map[string][]catalog.RasterFile{
			"Org A":     {{ID: "r1", Name: "DEM", URL: "http://x/r1.tif"}, {ID: "r2", Name: "Slope"}},
			"Org B":     {{ID: "b1", Name: "Landcover", URL: "http://x/b1.tif"}},
			"Empty Org": {},
		},
	}
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newCoordinator(t *testing.T, opts Options) *Coordinator {
	t.Helper()
	if opts.Catalog == nil {
		opts.Catalog = newStubCatalog()
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return t0 }
	}
	c, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

// selectDEM walks the cascade to the DEM raster of Org A
func selectDEM(t *testing.T, c *Coordinator) {
	t.Helper()
	require.NoError(t, c.LoadOrganisations())
	require.NoError(t, c.SelectOrganisation("Org A"))
	c.Wait()
	require.NoError(t, c.SelectRasterFile("r1"))
	c.Wait()
}

func ptr(v float64) *float64 { return &v }

// ---------------------------------------------------------------------------
// Viewport mode
// ---------------------------------------------------------------------------

func TestParseViewportMode(t *testing.T) {
	tests := []struct {
		in      string
		want    ViewportMode
		wantErr bool
	}{
		{"desktop", ViewportDesktop, false},
		{"mobile", ViewportMobile, false},
		{" Mobile ", ViewportMobile, false},
		{"tablet", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseViewportMode(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidViewportMode, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestNew_SidebarDefaults(t *testing.T) {
	desktop := newCoordinator(t, Options{})
	assert.Equal(t, ViewportDesktop, desktop.View().ViewportMode)
	assert.True(t, desktop.View().SidebarOpen)

	mobile := newCoordinator(t, Options{ViewportMode: ViewportMobile})
	assert.Equal(t, ViewportMobile, mobile.View().ViewportMode)
	assert.False(t, mobile.View().SidebarOpen)

	_, err := New(Options{Catalog: newStubCatalog(), ViewportMode: "watch"})
	assert.ErrorIs(t, err, ErrInvalidViewportMode)
}

func TestSetViewportModeAndToggleSidebar(t *testing.T) {
	c := newCoordinator(t, Options{})

	assert.False(t, c.ToggleSidebar())
	assert.True(t, c.ToggleSidebar())

	require.NoError(t, c.SetViewportMode(ViewportMobile))
	v := c.View()
	assert.Equal(t, ViewportMobile, v.ViewportMode)
	assert.False(t, v.SidebarOpen)

	assert.True(t, c.ToggleSidebar())
	require.NoError(t, c.SetViewportMode(ViewportMobile))
	assert.False(t, c.View().SidebarOpen, "setting the mode resets the sidebar")

	assert.ErrorIs(t, c.SetViewportMode("tv"), ErrInvalidViewportMode)
	assert.Equal(t, ViewportMobile, c.View().ViewportMode)
}

func TestNewFromConfig(t *testing.T) {
	c, err := NewFromConfig(&config.SessionConfig{ViewportMode: "mobile", EvictQueriesOnRemove: true}, newStubCatalog(), nil)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, ViewportMobile, c.View().ViewportMode)
	assert.True(t, c.evict)

	_, err = NewFromConfig(&config.SessionConfig{ViewportMode: ""}, newStubCatalog(), nil)
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// End-to-end scenarios
// ---------------------------------------------------------------------------

func TestScenario_SelectOrganisationThenRaster(t *testing.T) {
	c := newCoordinator(t, Options{})
	selectDEM(t, c)

	assert.Equal(t, []layers.Layer{
		{ID: "r1", Name: "DEM", Visible: true, URL: "http://x/r1.tif", Opacity: 1.0},
	}, c.Layers().Layers)

	v := c.View()
	assert.Equal(t, cascade.PhaseRasterFileSelected, v.Cascade.Phase)
	assert.Equal(t, cascade.StatusReady, v.Cascade.Organisations.Status)
}

func TestScenario_RemoveThenSetLayers(t *testing.T) {
	c := newCoordinator(t, Options{})
	selectDEM(t, c)

	snap, ok := c.RemoveLayer("r1")
	require.True(t, ok)
	assert.Empty(t, snap.Layers)

	_, err := c.SetLayers([]layers.Layer{{ID: "r1", Name: "DEM", Visible: true, Opacity: 1}})
	assert.NoError(t, err)
}

func TestScenario_EmptyRasterListing(t *testing.T) {
	c := newCoordinator(t, Options{})
	require.NoError(t, c.SelectOrganisation("Empty Org"))
	c.Wait()

	s := c.CascadeState()
	assert.Equal(t, cascade.StatusEmpty, s.RasterFiles.Status)
	assert.Empty(t, s.RasterFiles.Error)
}

func TestScenario_SwitchOrganisationClearsLayers(t *testing.T) {
	c := newCoordinator(t, Options{})
	selectDEM(t, c)

	require.NoError(t, c.SelectOrganisation("Org B"))
	assert.Empty(t, c.Layers().Layers)
	assert.Empty(t, c.CascadeState().SelectedRasterFile)
	c.Wait()
}

func TestScenario_UnknownOrganisationIsError(t *testing.T) {
	c := newCoordinator(t, Options{})
	require.NoError(t, c.SelectOrganisation("Nowhere"))
	c.Wait()

	s := c.CascadeState()
	assert.Equal(t, cascade.StatusError, s.RasterFiles.Status)
	assert.Equal(t, "list_raster_files: Not Found", s.RasterFiles.Error)
}

func TestSelectRasterFile_Invalid(t *testing.T) {
	c := newCoordinator(t, Options{})
	require.NoError(t, c.SelectOrganisation("Org A"))
	c.Wait()

	err := c.SelectRasterFile("b1")
	assert.True(t, errors.Is(err, cascade.ErrSelection))
}

// ---------------------------------------------------------------------------
// Layer mutations through the coordinator
// ---------------------------------------------------------------------------

func TestLayerOperations(t *testing.T) {
	c := newCoordinator(t, Options{})
	selectDEM(t, c)

	snap, ok := c.ToggleVisibility("r1")
	require.True(t, ok)
	assert.False(t, snap.Layers[0].Visible)

	snap, ok = c.SetOpacity("r1", 1.7)
	require.True(t, ok)
	assert.Equal(t, 1.0, snap.Layers[0].Opacity)

	snap, ok = c.SetOpacity("r1", -0.5)
	require.True(t, ok)
	assert.Equal(t, 0.0, snap.Layers[0].Opacity)

	_, ok = c.ToggleVisibility("nope")
	assert.False(t, ok)
}

func TestSubscribe(t *testing.T) {
	c := newCoordinator(t, Options{})
	ch, cancel := c.Subscribe()
	defer cancel()

	selectDEM(t, c)

	// drain to the newest snapshot
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if s.Len() == 1 {
				assert.Equal(t, "r1", s.Layers[0].ID)
				return
			}
		case <-deadline:
			t.Fatal("no snapshot with the selected layer")
		}
	}
}

func TestClose_EndsSubscriptions(t *testing.T) {
	c, err := New(Options{Catalog: newStubCatalog()})
	require.NoError(t, err)
	ch, _ := c.Subscribe()

	c.Close()
	for range ch {
	}
	assert.ErrorIs(t, c.SelectOrganisation("Org A"), cascade.ErrClosed)
}

func TestSubscribe_StartsAtCurrentSnapshot(t *testing.T) {
	c := newCoordinator(t, Options{})
	ch, cancel := c.Subscribe()
	defer cancel()

	select {
	case s := <-ch:
		assert.Equal(t, uint64(0), s.Version)
		assert.Empty(t, s.Layers)
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}
}

func TestCloseSubscriptions(t *testing.T) {
	c := newCoordinator(t, Options{})
	ch, _ := c.Subscribe()

	c.CloseSubscriptions()
	for range ch {
	}

	_, err := c.SetLayers([]layers.Layer{{ID: "a", Opacity: 1}})
	require.NoError(t, err, "the session stays usable")
	late, _ := c.Subscribe()
	_, open := <-late
	assert.False(t, open)
}

// ---------------------------------------------------------------------------
// Pixel queries
// ---------------------------------------------------------------------------

func TestRecordQuery(t *testing.T) {
	c := newCoordinator(t, Options{})
	selectDEM(t, c)

	all, err := c.RecordQuery("r1", [2]float64{10.1, 47.3}, ptr(812.5), "")
	require.NoError(t, err)
	require.Contains(t, all, "r1")

	got, ok := c.Query("r1")
	require.True(t, ok)
	assert.Equal(t, 812.5, *got.Value)
	assert.Equal(t, t0, got.Timestamp)

	_, err = c.RecordQuery("never-created", [2]float64{0, 0}, ptr(1), "")
	assert.ErrorIs(t, err, pixelquery.ErrUnknownLayer)
	assert.Len(t, c.Queries(), 1)
}

func TestRecordQuery_OtherLayersUntouched(t *testing.T) {
	c := newCoordinator(t, Options{})
	_, err := c.SetLayers([]layers.Layer{{ID: "x", Opacity: 1}, {ID: "y", Opacity: 1}})
	require.NoError(t, err)

	_, err = c.RecordQuery("y", [2]float64{1, 1}, ptr(2), "")
	require.NoError(t, err)
	before, _ := c.Query("y")

	_, err = c.RecordQuery("x", [2]float64{3, 3}, nil, "")
	require.NoError(t, err)
	after, _ := c.Query("y")
	assert.Equal(t, before, after)

	x, _ := c.Query("x")
	assert.Equal(t, pixelquery.ErrNoData.Error(), x.Error)
}

func TestQueriesOutliveLayerByDefault(t *testing.T) {
	c := newCoordinator(t, Options{})
	selectDEM(t, c)
	_, err := c.RecordQuery("r1", [2]float64{0, 0}, ptr(1), "")
	require.NoError(t, err)

	c.RemoveLayer("r1")
	_, ok := c.Query("r1")
	assert.True(t, ok)

	// a removed layer was still created once, so it may be queried again
	_, err = c.RecordQuery("r1", [2]float64{1, 1}, nil, "")
	assert.NoError(t, err)
}

func TestEvictQueriesOnRemove(t *testing.T) {
	c := newCoordinator(t, Options{EvictQueriesOnRemove: true})
	selectDEM(t, c)
	_, err := c.RecordQuery("r1", [2]float64{0, 0}, ptr(1), "")
	require.NoError(t, err)

	c.RemoveLayer("r1")
	_, ok := c.Query("r1")
	assert.False(t, ok)

	// replacement by a new raster selection also evicts
	_, err = c.SetLayers([]layers.Layer{{ID: "r1", Opacity: 1}})
	require.NoError(t, err)
	_, err = c.RecordQuery("r1", [2]float64{0, 0}, ptr(1), "")
	require.NoError(t, err)
	require.NoError(t, c.SelectRasterFile("r2"))
	c.Wait()
	_, ok = c.Query("r1")
	assert.False(t, ok)
}

func TestView_JSON(t *testing.T) {
	c := newCoordinator(t, Options{})
	selectDEM(t, c)
	_, err := c.RecordQuery("r1", [2]float64{1, 2}, ptr(3), "")
	require.NoError(t, err)

	b, err := json.Marshal(c.View())
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "desktop", decoded["viewport_mode"])
	assert.Equal(t, true, decoded["sidebar_open"])
	assert.Contains(t, decoded, "cascade")
	assert.Contains(t, decoded["pixel_queries"], "r1")
	lyr := decoded["layers"].(map[string]interface{})
	assert.Len(t, lyr["layers"], 1)
}
