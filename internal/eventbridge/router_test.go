package eventbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func updated(id string, assets ...string) Event {
	return Event{EventID: id, Type: TypeAssetUpdated, AssetIDs: assets}
}

func TestRouterBuffersAndFlushes(t *testing.T) {
	router := NewRouter(RouterWithSubscriberCapacity(4))
	router.Route(updated("evt-1", "a.png"))
	router.Route(Event{EventID: "evt-2", Type: TypeAssetDeleted, AssetIDs: []string{"b.png"}})
	router.Route(updated("evt-3", "c.png"))
	sub := router.Subscribe(TypeAssetUpdated, TypeAssetDeleted)
	defer sub.Close()

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, (<-sub.Events).EventID)
	}
	assert.Equal(t, []string{"evt-1", "evt-2", "evt-3"}, ids, "backlog flushes in arrival order across types")
}

func TestRouterDedupeByEventID(t *testing.T) {
	router := NewRouter()
	sub := router.Subscribe(TypeAssetUpdated)
	defer sub.Close()
	router.Route(updated("evt-1", "a.png"))
	router.Route(updated("evt-1", "a.png"))
	require.Len(t, sub.Events, 1)
	got := <-sub.Events
	assert.Equal(t, int64(1), got.Sequence)
}

func TestRouterDedupeWindowForgetsOldIDs(t *testing.T) {
	router := NewRouter(RouterWithDedupeWindow(1))
	sub := router.Subscribe(TypeAssetUpdated)
	defer sub.Close()
	router.Route(updated("evt-1"))
	router.Route(updated("evt-2"))
	router.Route(updated("evt-1"))
	assert.Len(t, sub.Events, 3)
}

func TestRouterKeepsDeletionOnOverflow(t *testing.T) {
	router := NewRouter(RouterWithSubscriberCapacity(1))
	sub := router.Subscribe(TypeAssetUpdated, TypeAssetDeleted)
	defer sub.Close()
	router.Route(updated("evt-1", "a.png"))
	router.Route(Event{EventID: "evt-2", Type: TypeAssetDeleted, AssetIDs: []string{"a.png"}})
	assert.Equal(t, "evt-2", (<-sub.Events).EventID)

	router.Route(Event{EventID: "evt-3", Type: TypeAssetDeleted, AssetIDs: []string{"b.png"}})
	router.Route(updated("evt-4", "b.png"))
	assert.Equal(t, "evt-3", (<-sub.Events).EventID)
	assert.Len(t, sub.Events, 0)
}

func TestRouterCoalescesUpdatesOnOverflow(t *testing.T) {
	router := NewRouter(RouterWithSubscriberCapacity(2))
	sub := router.Subscribe(TypeAssetUpdated, TypeAssetDeleted)
	defer sub.Close()
	router.Route(updated("evt-1", "b.png"))
	router.Route(Event{EventID: "evt-2", Type: TypeAssetDeleted, AssetIDs: []string{"x.png"}})
	router.Route(updated("evt-3", "a.png", "b.png"))

	require.Len(t, sub.Events, 2)
	first := <-sub.Events
	assert.Equal(t, "evt-2", first.EventID)
	merged := <-sub.Events
	assert.Equal(t, "evt-3", merged.EventID)
	assert.Equal(t, []string{"a.png", "b.png"}, merged.AssetIDs)

	router.Route(updated("evt-4", "c.png"))
	router.Route(updated("evt-5", "d.png"))
	router.Route(updated("evt-6", "e.png"))
	require.Len(t, sub.Events, 1)
	merged = <-sub.Events
	assert.Equal(t, "evt-6", merged.EventID)
	assert.Equal(t, []string{"c.png", "d.png", "e.png"}, merged.AssetIDs)
}

func TestRouterIgnoresOtherTypesAndClosedSubscriptions(t *testing.T) {
	router := NewRouter()
	updates := router.Subscribe(TypeAssetUpdated)
	router.Route(Event{EventID: "x", Type: TypeShutdown})
	assert.Len(t, updates.Events, 0)

	updates.Close()
	_, open := <-updates.Events
	assert.False(t, open)
	router.Route(updated("evt-9"))
	updates.Close()
}
