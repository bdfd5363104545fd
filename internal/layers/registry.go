package layers

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/rasterscope/rasterscope/internal/telemetry"
)

// Publisher receives every new snapshot. Publish is called with the registry
// lock held, so it must not call back into the registry.
type Publisher interface {
	Publish(Snapshot)
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(Snapshot)

// Publish calls f(s)
func (f PublisherFunc) Publish(s Snapshot) { f(s) }

// RemovalHook is told which layer ids left the registry. Like Publisher it
// runs under the registry lock.
type RemovalHook func(ids []string)

// Option configures a Registry
type Option func(*Registry)

// WithPublisher adds a snapshot publisher
func WithPublisher(p Publisher) Option {
	return func(r *Registry) { r.publishers = append(r.publishers, p) }
}

// WithRemovalHook sets the hook run when layers are removed or replaced
func WithRemovalHook(h RemovalHook) Option {
	return func(r *Registry) { r.onRemove = h }
}

// Registry is the only writer of the layer list
type Registry struct {
	mu         sync.Mutex
	current    Snapshot
	known      map[string]struct{}
	publishers []Publisher
	onRemove   RemovalHook
}

// NewRegistry creates an empty registry at version 0
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		current: Snapshot{Layers: []Layer{}},
		known:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Snapshot returns the current snapshot
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Known reports whether a layer with id has ever been in the registry
func (r *Registry) Known(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.known[id]
	return ok
}

// SetLayers replaces the whole list. Ids must be unique and non-empty;
// opacities are clamped. On error the registry is unchanged.
func (r *Registry) SetLayers(layers []Layer) (Snapshot, error) {
	next := make([]Layer, len(layers))
	seen := make(map[string]struct{}, len(layers))
	for i, l := range layers {
		if l.ID == "" {
			return Snapshot{}, fmt.Errorf("layer %d: %w", i, ErrEmptyID)
		}
		if _, dup := seen[l.ID]; dup {
			return Snapshot{}, fmt.Errorf("%w: %s", ErrDuplicateID, l.ID)
		}
		if math.IsNaN(l.Opacity) {
			return Snapshot{}, fmt.Errorf("layer %s: %w", l.ID, ErrInvalidOpacity)
		}
		seen[l.ID] = struct{}{}
		l.Opacity = ClampOpacity(l.Opacity)
		next[i] = l
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for _, old := range r.current.Layers {
		if _, kept := seen[old.ID]; !kept {
			removed = append(removed, old.ID)
		}
	}
	for id := range seen {
		r.known[id] = struct{}{}
	}

	snap := r.commit(next, "set")
	slog.Debug("layers replaced", "count", len(next), "removed", len(removed), "version", snap.Version)
	r.removed(removed)
	return snap, nil
}

// ToggleVisibility flips visible for id. It reports false, publishing
// nothing, when id is absent.
func (r *Registry) ToggleVisibility(id string) (Snapshot, bool) {
	return r.update(id, "toggle", func(l *Layer) { l.Visible = !l.Visible })
}

// SetOpacity stores clamp(v, 0, 1) for id. Absent ids and NaN are no-ops.
func (r *Registry) SetOpacity(id string, v float64) (Snapshot, bool) {
	if math.IsNaN(v) {
		return r.Snapshot(), false
	}
	v = ClampOpacity(v)
	return r.update(id, "opacity", func(l *Layer) { l.Opacity = v })
}

// RemoveLayer removes id; absent ids are a no-op
func (r *Registry) RemoveLayer(id string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return r.current, false
	}

	next := make([]Layer, 0, len(r.current.Layers)-1)
	next = append(next, r.current.Layers[:idx]...)
	next = append(next, r.current.Layers[idx+1:]...)

	snap := r.commit(next, "remove")
	slog.Debug("layer removed", "layer_id", id, "version", snap.Version)
	r.removed([]string{id})
	return snap, true
}

// update copies the list, applies fn to the layer with id in place and commits
func (r *Registry) update(id, op string, fn func(*Layer)) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return r.current, false
	}

	next := make([]Layer, len(r.current.Layers))
	copy(next, r.current.Layers)
	fn(&next[idx])

	snap := r.commit(next, op)
	slog.Debug("layer updated", "operation", op, "layer_id", id, "version", snap.Version)
	return snap, true
}

func (r *Registry) indexOf(id string) int {
	for i, l := range r.current.Layers {
		if l.ID == id {
			return i
		}
	}
	return -1
}

// commit installs layers as the next version and publishes it. Callers hold r.mu.
func (r *Registry) commit(layers []Layer, op string) Snapshot {
	r.current = Snapshot{Version: r.current.Version + 1, Layers: layers}

	telemetry.LayerMutationsTotal.WithLabelValues(op).Inc()
	telemetry.ActiveLayers.Set(float64(len(layers)))

	for _, p := range r.publishers {
		p.Publish(r.current)
	}
	return r.current
}

func (r *Registry) removed(ids []string) {
	if len(ids) > 0 && r.onRemove != nil {
		r.onRemove(ids)
	}
}
