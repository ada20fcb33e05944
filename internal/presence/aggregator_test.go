package presence

import (
	"context"
	"sync"
	"testing"

	"github.com/familiar-chat/mediagate/internal/database/models"
	"github.com/familiar-chat/mediagate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func loadVisitor(t *testing.T, db *gorm.DB, orgID, visitorID string) models.Visitor {
	t.Helper()
	var v models.Visitor
	require.NoError(t, db.Where("organization_id = ? AND id = ?", orgID, visitorID).Take(&v).Error)
	return v
}

func TestAggregator_Recount(t *testing.T) {
	ts := testutil.NewTestContext(t)
	defer ts.Cleanup()
	ctx := testutil.TestContext(t)

	testutil.CreateTestConnection(t, ts.DB, ts.Org.ID, ts.Visitor.ID, "a", true)
	testutil.CreateTestConnection(t, ts.DB, ts.Org.ID, ts.Visitor.ID, "b", false)
	testutil.CreateTestConnection(t, ts.DB, ts.Org.ID, ts.Visitor.ID, "c", true)

	// Another visitor's connections never count.
	other := testutil.CreateTestVisitor(t, ts.DB, ts.Org.ID)
	testutil.CreateTestConnection(t, ts.DB, ts.Org.ID, other.ID, "a", true)

	agg := NewAggregator(ts.DB, testutil.TestLogger(), DefaultMaxRetries)
	outcome, err := agg.Recount(ctx, ts.Org.ID, ts.Visitor.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)

	v := loadVisitor(t, ts.DB, ts.Org.ID, ts.Visitor.ID)
	assert.Equal(t, 2, v.ConnectedCount)
	assert.Equal(t, int64(1), v.Version)
}

func TestAggregator_NoConnections(t *testing.T) {
	ts := testutil.NewTestContext(t)
	defer ts.Cleanup()
	ctx := testutil.TestContext(t)

	require.NoError(t, ts.DB.Model(&models.Visitor{}).
		Where("organization_id = ? AND id = ?", ts.Org.ID, ts.Visitor.ID).
		Update("connected_count", 4).Error)

	agg := NewAggregator(ts.DB, testutil.TestLogger(), DefaultMaxRetries)
	outcome, err := agg.Recount(ctx, ts.Org.ID, ts.Visitor.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, 0, loadVisitor(t, ts.DB, ts.Org.ID, ts.Visitor.ID).ConnectedCount)
}

func TestAggregator_MissingVisitorIsNoop(t *testing.T) {
	ts := testutil.NewTestContext(t)
	defer ts.Cleanup()

	agg := NewAggregator(ts.DB, testutil.TestLogger(), DefaultMaxRetries)
	outcome, err := agg.Recount(testutil.TestContext(t), ts.Org.ID, "visitor-gone")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)

	var n int64
	require.NoError(t, ts.DB.Model(&models.Visitor{}).Where("id = ?", "visitor-gone").Count(&n).Error)
	assert.Zero(t, n, "recount must not create a visitor")
}

func TestAggregator_RetriesOnConflict(t *testing.T) {
	ts := testutil.NewTestContext(t)
	defer ts.Cleanup()
	ctx := testutil.TestContext(t)

	testutil.CreateTestConnection(t, ts.DB, ts.Org.ID, ts.Visitor.ID, "a", true)

	agg := NewAggregator(ts.DB, testutil.TestLogger(), DefaultMaxRetries)
	calls := 0
	agg.afterRead = func(ctx context.Context) {
		calls++
		if calls > 1 {
			return
		}
		// A second connection lands between the read and the swap.
		require.NoError(t, ts.DB.Transaction(func(tx *gorm.DB) error {
			if err := bumpVersion(tx, ts.Org.ID, ts.Visitor.ID); err != nil {
				return err
			}
			return tx.Create(&models.Connection{
				ID: "b", OrganizationID: ts.Org.ID, VisitorID: ts.Visitor.ID, Connected: true,
			}).Error
		}))
	}

	outcome, err := agg.Recount(ctx, ts.Org.ID, ts.Visitor.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, 2, calls, "first swap loses, second wins")
	assert.Equal(t, 2, loadVisitor(t, ts.DB, ts.Org.ID, ts.Visitor.ID).ConnectedCount, "stale count of 1 is never written")
}

func TestAggregator_DropsAfterRetryBudget(t *testing.T) {
	ts := testutil.NewTestContext(t)
	defer ts.Cleanup()
	ctx := testutil.TestContext(t)

	testutil.CreateTestConnection(t, ts.DB, ts.Org.ID, ts.Visitor.ID, "a", true)

	agg := NewAggregator(ts.DB, testutil.TestLogger(), 3)
	calls := 0
	agg.afterRead = func(ctx context.Context) {
		calls++
		require.NoError(t, bumpVersion(ts.DB, ts.Org.ID, ts.Visitor.ID))
	}

	outcome, err := agg.Recount(ctx, ts.Org.ID, ts.Visitor.ID)
	require.NoError(t, err, "exhaustion is not an error")
	assert.Equal(t, OutcomeDropped, outcome)
	assert.Equal(t, 4, calls, "one attempt plus three retries")
	assert.Equal(t, 0, loadVisitor(t, ts.DB, ts.Org.ID, ts.Visitor.ID).ConnectedCount)
}

func TestAggregator_ZeroRetries(t *testing.T) {
	ts := testutil.NewTestContext(t)
	defer ts.Cleanup()

	agg := NewAggregator(ts.DB, testutil.TestLogger(), 0)
	agg.afterRead = func(ctx context.Context) {
		require.NoError(t, bumpVersion(ts.DB, ts.Org.ID, ts.Visitor.ID))
	}

	outcome, err := agg.Recount(testutil.TestContext(t), ts.Org.ID, ts.Visitor.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDropped, outcome)
}

func TestNewAggregator_NegativeRetriesUseDefault(t *testing.T) {
	agg := NewAggregator(nil, testutil.TestLogger(), -1)
	assert.Equal(t, DefaultMaxRetries, agg.maxRetries)
}

func TestAggregator_ConcurrentToggle(t *testing.T) {
	ts := testutil.NewTestContext(t)
	defer ts.Cleanup()
	ctx := testutil.TestContext(t)

	testutil.CreateTestConnection(t, ts.DB, ts.Org.ID, ts.Visitor.ID, "a", true)
	testutil.CreateTestConnection(t, ts.DB, ts.Org.ID, ts.Visitor.ID, "b", false)
	testutil.CreateTestConnection(t, ts.DB, ts.Org.ID, ts.Visitor.ID, "c", true)

	agg := NewAggregator(ts.DB, testutil.TestLogger(), DefaultMaxRetries)
	store := NewStore(ts.DB, Inline{Aggregator: agg}, testutil.TestLogger())

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.SetConnection(ctx, ts.Org.ID, ts.Visitor.ID, "b", true)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	count, err := store.ConnectedCount(ctx, ts.Org.ID, ts.Visitor.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
