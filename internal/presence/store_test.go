package presence

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/familiar-chat/mediagate/internal/database/models"
	"github.com/familiar-chat/mediagate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *recordingNotifier) ConnectionsChanged(ctx context.Context, organizationID, visitorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, organizationID+"/"+visitorID)
	return r.err
}

func TestStore_SetConnectionNotifies(t *testing.T) {
	ts := testutil.NewTestContext(t)
	defer ts.Cleanup()
	ctx := testutil.TestContext(t)

	n := &recordingNotifier{}
	store := NewStore(ts.DB, n, testutil.TestLogger())

	require.NoError(t, store.SetConnection(ctx, ts.Org.ID, ts.Visitor.ID, "a", true))
	require.NoError(t, store.SetConnection(ctx, ts.Org.ID, ts.Visitor.ID, "a", false))

	var conn models.Connection
	require.NoError(t, ts.DB.Where("id = ? AND visitor_id = ?", "a", ts.Visitor.ID).Take(&conn).Error)
	assert.False(t, conn.Connected, "second write updates in place")
	assert.NotZero(t, conn.UpdatedAt)

	var v models.Visitor
	require.NoError(t, ts.DB.Where("organization_id = ? AND id = ?", ts.Org.ID, ts.Visitor.ID).Take(&v).Error)
	assert.Equal(t, int64(2), v.Version, "every write bumps the version")

	want := ts.Org.ID + "/" + ts.Visitor.ID
	assert.Equal(t, []string{want, want}, n.calls)
}

func TestStore_RemoveConnection(t *testing.T) {
	ts := testutil.NewTestContext(t)
	defer ts.Cleanup()
	ctx := testutil.TestContext(t)

	agg := NewAggregator(ts.DB, testutil.TestLogger(), DefaultMaxRetries)
	store := NewStore(ts.DB, Inline{Aggregator: agg}, testutil.TestLogger())

	require.NoError(t, store.SetConnection(ctx, ts.Org.ID, ts.Visitor.ID, "a", true))
	require.NoError(t, store.SetConnection(ctx, ts.Org.ID, ts.Visitor.ID, "b", true))

	count, err := store.ConnectedCount(ctx, ts.Org.ID, ts.Visitor.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, store.RemoveConnection(ctx, ts.Org.ID, ts.Visitor.ID, "a"))
	count, err = store.ConnectedCount(ctx, ts.Org.ID, ts.Visitor.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, store.RemoveConnection(ctx, ts.Org.ID, ts.Visitor.ID, "never-existed"))
	count, err = store.ConnectedCount(ctx, ts.Org.ID, ts.Visitor.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStore_UnknownVisitor(t *testing.T) {
	ts := testutil.NewTestContext(t)
	defer ts.Cleanup()
	ctx := testutil.TestContext(t)

	n := &recordingNotifier{}
	store := NewStore(ts.DB, n, testutil.TestLogger())

	err := store.SetConnection(ctx, ts.Org.ID, "visitor-gone", "a", true)
	assert.ErrorIs(t, err, ErrVisitorNotFound)

	err = store.RemoveConnection(ctx, ts.Org.ID, "visitor-gone", "a")
	assert.ErrorIs(t, err, ErrVisitorNotFound)

	_, err = store.ConnectedCount(ctx, ts.Org.ID, "visitor-gone")
	assert.ErrorIs(t, err, ErrVisitorNotFound)

	var conns int64
	require.NoError(t, ts.DB.Model(&models.Connection{}).Count(&conns).Error)
	assert.Zero(t, conns, "failed writes roll back")
	assert.Empty(t, n.calls)
}

func TestStore_NotifierFailure(t *testing.T) {
	ts := testutil.NewTestContext(t)
	defer ts.Cleanup()
	ctx := testutil.TestContext(t)

	n := &recordingNotifier{err: errors.New("redis unavailable")}
	store := NewStore(ts.DB, n, testutil.TestLogger())

	err := store.SetConnection(ctx, ts.Org.ID, ts.Visitor.ID, "a", true)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "scheduling recount")

	var conn models.Connection
	require.NoError(t, ts.DB.Where("id = ?", "a").Take(&conn).Error, "the write itself is committed")
	assert.True(t, conn.Connected)
}

func TestStore_NilNotifier(t *testing.T) {
	ts := testutil.NewTestContext(t)
	defer ts.Cleanup()

	store := NewStore(ts.DB, nil, testutil.TestLogger())
	require.NoError(t, store.SetConnection(testutil.TestContext(t), ts.Org.ID, ts.Visitor.ID, "a", true))
}
