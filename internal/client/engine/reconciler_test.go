package engine

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xdeleon/offsync/internal/api"
	"github.com/xdeleon/offsync/internal/client/models"
	"github.com/xdeleon/offsync/internal/client/store"
	"github.com/xdeleon/offsync/internal/common"
)

func insertEvent(t api.Table, r api.Row) api.RowEvent {
	return api.RowEvent{Type: api.EventInsert, Table: t, Record: &r}
}

func updateEvent(t api.Table, r api.Row) api.RowEvent {
	return api.RowEvent{Type: api.EventUpdate, Table: t, Record: &r}
}

func TestHandleEvent_InsertIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ev := insertEvent(api.TableContainers, row("c1", "u1", t0))
	require.NoError(t, h.e.HandleEvent(ctx, ev))
	require.NoError(t, h.e.HandleEvent(ctx, ev))

	list, err := h.e.ListContainers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "c1", list[0].ID)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.events.WithLabelValues("containers", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.events.WithLabelValues("containers", "duplicate")))
	assert.Zero(t, h.pendingCount(t), "remote changes are never queued")
}

func TestHandleEvent_ForeignOwnerDiscarded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.e.HandleEvent(ctx, insertEvent(api.TableContainers, row("c1", "intruder", t0))))

	_, err := h.e.GetContainer(ctx, "c1")
	require.ErrorIs(t, err, common.ErrorNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.events.WithLabelValues("containers", "foreign")))
}

func TestHandleEvent_PendingChangeShadowsUpdate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.offline()

	c, err := h.e.CreateContainer(ctx, "mine", "")
	require.NoError(t, err)
	h.settle()
	marker := h.e.LastUpdate()

	remote := row(c.ID, "u1", t0.Add(time.Hour))
	remote.Name = "theirs"
	require.NoError(t, h.e.HandleEvent(ctx, updateEvent(api.TableContainers, remote)))

	got, err := h.e.GetContainer(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "mine", got.Name)
	assert.True(t, c.UpdatedAt.Equal(got.UpdatedAt))
	assert.Equal(t, marker, h.e.LastUpdate())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.events.WithLabelValues("containers", "shadowed")))
}

func TestHandleEvent_UpdateAppliesFields(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.e.HandleEvent(ctx, insertEvent(api.TableContainers, row("c1", "u1", t0))))
	upd := row("c1", "u1", t0.Add(time.Minute))
	upd.Name, upd.Notes = "renamed", "note"
	require.NoError(t, h.e.HandleEvent(ctx, updateEvent(api.TableContainers, upd)))

	got, err := h.e.GetContainer(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, "note", got.Notes)

	marker := h.e.LastUpdate()
	require.NoError(t, h.e.HandleEvent(ctx, updateEvent(api.TableContainers, upd)))
	assert.Equal(t, marker, h.e.LastUpdate(), "identical replay does not notify")
}

func TestHandleEvent_UpdateMaterializesMissingRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.e.HandleEvent(ctx, updateEvent(api.TableItems, itemRow("i1", "c1", "u1", t0))))

	got, err := h.e.GetItem(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ContainerID)
}

func TestHandleEvent_ItemBeforeItsContainer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.e.HandleEvent(ctx, insertEvent(api.TableItems, itemRow("i1", "c-late", "u1", t0))))
	got, err := h.e.GetItem(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, "c-late", got.ContainerID)

	require.NoError(t, h.e.HandleEvent(ctx, insertEvent(api.TableContainers, row("c-late", "u1", t0))))
	items, err := h.e.ListItems(ctx, "c-late")
	require.NoError(t, err)
	assert.Len(t, items, 1, "the item links up once the container arrives")

	deleted := row("c-late", "u1", t0.Add(time.Minute))
	deleted.DeletedAt = ptr(t0.Add(time.Minute))
	require.NoError(t, h.e.HandleEvent(ctx, updateEvent(api.TableContainers, deleted)))
	items, err = h.e.ListItems(ctx, "c-late")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestHandleEvent_ItemUnderLocallyDeletedContainer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.offline()

	c, err := h.e.CreateContainer(ctx, "gone", "")
	require.NoError(t, err)
	require.NoError(t, h.e.DeleteContainer(ctx, c.ID))
	h.settle()
	c, err = h.e.GetContainer(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, c.DeletedAt)

	require.NoError(t, h.e.HandleEvent(ctx, insertEvent(api.TableItems, itemRow("i9", c.ID, "u1", t0))))

	it, err := h.e.GetItem(ctx, "i9")
	require.NoError(t, err)
	require.NotNil(t, it.DeletedAt, "the item follows its container")
	assert.True(t, c.DeletedAt.Equal(*it.DeletedAt))
	assert.False(t, it.UpdatedAt.Before(c.UpdatedAt))

	items, err := h.e.ListItems(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestHandleEvent_OutOfOrderUpdates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.e.HandleEvent(ctx, insertEvent(api.TableContainers, row("c1", "u1", t0))))
	newer := row("c1", "u1", t0.Add(2*time.Second))
	newer.Name = "B"
	require.NoError(t, h.e.HandleEvent(ctx, updateEvent(api.TableContainers, newer)))
	older := row("c1", "u1", t0.Add(time.Second))
	older.Name = "A"
	require.NoError(t, h.e.HandleEvent(ctx, updateEvent(api.TableContainers, older)))

	got, err := h.e.GetContainer(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "B", got.Name)
	assert.True(t, newer.UpdatedAt.Equal(got.UpdatedAt))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.events.WithLabelValues("containers", "stale")))

	require.NoError(t, h.e.HandleEvent(ctx, insertEvent(api.TableItems, itemRow("i1", "c1", "u1", t0.Add(2*time.Second)))))
	olderItem := itemRow("i1", "c1", "u1", t0.Add(time.Second))
	olderItem.Name = "old"
	require.NoError(t, h.e.HandleEvent(ctx, updateEvent(api.TableItems, olderItem)))

	it, err := h.e.GetItem(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, "i1", it.Name)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.events.WithLabelValues("items", "stale")))
}

func TestHandleEvent_NoResurrectionOfLocallyDeleted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.e.HandleEvent(ctx, insertEvent(api.TableContainers, row("c1", "u1", t0))))
	h.offline()
	require.NoError(t, h.e.DeleteContainer(ctx, "c1"))
	h.settle()

	// A stale remote update arrives after the local delete was confirmed.
	require.NoError(t, h.store.WithTx(ctx, func(ctx context.Context, r store.Repos) error {
		_, err := r.Pending.DeleteFor(ctx, models.KindContainer, "c1")
		return err
	}))

	stale := row("c1", "u1", t0.Add(time.Minute))
	stale.Name = "stale"
	require.NoError(t, h.e.HandleEvent(ctx, updateEvent(api.TableContainers, stale)))

	got, err := h.e.GetContainer(ctx, "c1")
	require.NoError(t, err)
	assert.NotNil(t, got.DeletedAt)
	assert.NotEqual(t, "stale", got.Name)

	rec := h.e.LastError()
	require.NotNil(t, rec)
	assert.ErrorIs(t, rec.Err, ErrConflict)
}

func TestHandleEvent_RemoteCascadeDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.e.HandleEvent(ctx, insertEvent(api.TableContainers, row("c1", "u1", t0))))
	require.NoError(t, h.e.HandleEvent(ctx, insertEvent(api.TableItems, itemRow("i1", "c1", "u1", t0))))
	require.NoError(t, h.e.HandleEvent(ctx, insertEvent(api.TableItems, itemRow("i2", "c1", "u1", t0))))

	// A local item edit is queued under the container.
	h.offline()
	_, err := h.e.UpdateItem(ctx, "i1", "edited", "")
	require.NoError(t, err)
	h.settle()

	at := t0.Add(time.Hour)
	del := row("c1", "u1", at)
	del.DeletedAt = &at
	require.NoError(t, h.e.HandleEvent(ctx, updateEvent(api.TableContainers, del)))

	items, err := h.e.ListItems(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, items)
	for _, id := range []string{"i1", "i2"} {
		it, err := h.e.GetItem(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, it.DeletedAt)
		assert.True(t, at.Equal(*it.DeletedAt))
	}
	assert.Zero(t, h.pendingCount(t), "queued item changes under the container are discarded")
	assert.Nil(t, h.e.LastError(), "discarding item changes is not a conflict")
}

func TestScenario_RemoteDeleteBeatsQueuedUpdate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.e.HandleEvent(ctx, insertEvent(api.TableContainers, row("c1", "u1", t0))))
	h.offline()
	_, err := h.e.UpdateContainer(ctx, "c1", "local edit", "")
	require.NoError(t, err)
	h.settle()
	require.Equal(t, 1, h.pendingCount(t))

	require.NoError(t, h.e.HandleEvent(ctx, api.RowEvent{Type: api.EventDelete, Table: api.TableContainers, OldID: "c1"}))

	got, err := h.e.GetContainer(ctx, "c1")
	require.NoError(t, err)
	assert.NotNil(t, got.DeletedAt)
	assert.Zero(t, h.pendingCount(t))

	rec := h.e.LastError()
	require.NotNil(t, rec)
	assert.ErrorIs(t, rec.Err, ErrConflict)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.conflicts))
}

func TestHandleEvent_RemoteDeleteOfItemWithQueuedDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.e.HandleEvent(ctx, insertEvent(api.TableContainers, row("c1", "u1", t0))))
	require.NoError(t, h.e.HandleEvent(ctx, insertEvent(api.TableItems, itemRow("i1", "c1", "u1", t0))))
	h.offline()
	require.NoError(t, h.e.DeleteItem(ctx, "i1"))
	h.settle()

	del := itemRow("i1", "c1", "u1", t0.Add(time.Hour))
	del.DeletedAt = ptr(t0.Add(time.Hour))
	require.NoError(t, h.e.HandleEvent(ctx, updateEvent(api.TableItems, del)))

	assert.Zero(t, h.pendingCount(t))
	assert.Nil(t, h.e.LastError(), "both sides deleted; nothing was lost")
}

func TestHandleEvent_RemoteDeleteOfUnknownRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	del := row("ghost", "u1", t0)
	del.DeletedAt = ptr(t0)
	require.NoError(t, h.e.HandleEvent(ctx, updateEvent(api.TableContainers, del)))

	_, err := h.e.GetContainer(ctx, "ghost")
	require.ErrorIs(t, err, common.ErrorNotFound, "deleted records are not materialized")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.events.WithLabelValues("containers", "noop")))
}

func TestHandleEvent_Malformed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.Error(t, h.e.HandleEvent(ctx, api.RowEvent{Type: api.EventInsert, Table: "users", Record: &api.Row{ID: "x"}}))
	require.Error(t, h.e.HandleEvent(ctx, api.RowEvent{Type: api.EventUpdate, Table: api.TableItems}))
	assert.NotNil(t, h.e.LastError())
}

func TestHandleEvent_NoSession(t *testing.T) {
	h := newHarness(t)
	h.session.set("")

	err := h.e.HandleEvent(context.Background(), insertEvent(api.TableContainers, row("c1", "u1", t0)))
	require.ErrorIs(t, err, ErrNoSession)
}
