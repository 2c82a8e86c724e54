package models

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xdeleon/offsync/internal/api"
)

func TestEntityKind_PriorityAndTable(t *testing.T) {
	assert.Less(t, KindContainer.Priority(), KindItem.Priority())
	assert.Equal(t, api.TableContainers, KindContainer.Table())
	assert.Equal(t, api.TableItems, KindItem.Table())

	k, err := KindForTable(api.TableItems)
	require.NoError(t, err)
	assert.Equal(t, KindItem, k)

	_, err = KindForTable("nope")
	require.Error(t, err)
}

func TestItemRowConversion(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	row := api.Row{
		ID: "i1", OwnerID: "u1", ContainerID: "c1", Name: "Cells", Notes: "n",
		CreatedAt: at, UpdatedAt: at, DeletedAt: &at,
	}

	it := ItemFromRow(row)
	assert.Equal(t, time.UTC, it.CreatedAt.Location())
	assert.True(t, it.Deleted())

	back := it.ToRow("u1")
	if diff := cmp.Diff(row.DeletedAt.UTC(), back.DeletedAt.UTC()); diff != "" {
		t.Fatalf("deleted_at mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "c1", back.ContainerID)
	assert.Equal(t, "u1", back.OwnerID)
}

func TestContainerRowConversion(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	c := Container{ID: "c1", Name: "Biology", CreatedAt: at, UpdatedAt: at}

	row := c.ToRow("u9")
	assert.Equal(t, "u9", row.OwnerID)
	assert.Empty(t, row.ContainerID)
	assert.False(t, row.Deleted())

	got := ContainerFromRow(row)
	if diff := cmp.Diff(c, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodePayload(t *testing.T) {
	data, err := Payload{UserID: "u1", Container: &Container{ID: "c1"}}.Encode()
	require.NoError(t, err)

	p, err := DecodePayload(KindContainer, data)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, "c1", p.Container.ID)

	_, err = DecodePayload(KindItem, data)
	require.ErrorContains(t, err, "missing item snapshot")

	_, err = DecodePayload(KindContainer, []byte("{"))
	require.Error(t, err)

	_, err = DecodePayload("ghost", data)
	require.ErrorContains(t, err, "unknown kind")
}
