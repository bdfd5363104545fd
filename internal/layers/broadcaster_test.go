package layers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case s, ok := <-ch:
		require.True(t, ok, "channel closed")
		return s
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func TestBroadcaster_LatestWins(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe()
	defer cancel()

	for v := uint64(1); v <= 5; v++ {
		b.Publish(Snapshot{Version: v})
	}

	assert.Equal(t, uint64(5), recv(t, ch).Version)
	select {
	case s := <-ch:
		t.Fatalf("unexpected extra snapshot %d", s.Version)
	default:
	}
}

func TestBroadcaster_SubscribeGetsCurrent(t *testing.T) {
	b := NewBroadcaster()
	b.Publish(Snapshot{Version: 3, Layers: []Layer{demLayer()}})

	ch, cancel := b.Subscribe()
	defer cancel()
	got := recv(t, ch)
	assert.Equal(t, uint64(3), got.Version)
	assert.Len(t, got.Layers, 1)
}

func TestBroadcaster_IgnoresOlderVersions(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(Snapshot{Version: 4})
	assert.Equal(t, uint64(4), recv(t, ch).Version)

	b.Publish(Snapshot{Version: 2})
	select {
	case s := <-ch:
		t.Fatalf("stale snapshot %d delivered", s.Version)
	default:
	}
}

func TestBroadcaster_CancelAndClose(t *testing.T) {
	b := NewBroadcaster()
	ch1, cancel1 := b.Subscribe()
	ch2, _ := b.Subscribe()
	assert.Equal(t, 2, b.Subscribers())

	cancel1()
	cancel1()
	_, ok := <-ch1
	assert.False(t, ok)
	assert.Equal(t, 1, b.Subscribers())

	b.Close()
	_, ok = <-ch2
	assert.False(t, ok)
	assert.Equal(t, 0, b.Subscribers())

	// publishing and subscribing after close are safe
	b.Publish(Snapshot{Version: 9})
	ch3, cancel3 := b.Subscribe()
	cancel3()
	_, ok = <-ch3
	assert.False(t, ok)
}

func TestBroadcaster_AsRegistryPublisher(t *testing.T) {
	b := NewBroadcaster()
	r := NewRegistry(WithPublisher(b))
	ch, cancel := b.Subscribe()
	defer cancel()

	_, err := r.SetLayers([]Layer{demLayer()})
	require.NoError(t, err)
	got := recv(t, ch)
	assert.Equal(t, uint64(1), got.Version)

	r.ToggleVisibility("r1")
	got = recv(t, ch)
	assert.False(t, got.Layers[0].Visible)
}
