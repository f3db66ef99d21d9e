package incentive

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payrollengine/internal/platform/db"
)

func TestIsKnownCategory(t *testing.T) {
	for _, c := range []string{CategoryPerformance, CategoryAttendance, CategorySafety, CategoryLoyalty, CategoryProject, CategorySeasonal, CategoryOther} {
		assert.True(t, IsKnownCategory(c), c)
	}
	assert.False(t, IsKnownCategory("referral"))
	assert.False(t, IsKnownCategory("Performance"))
	assert.False(t, IsKnownCategory(""))
}

func TestDecideRejectsUnknownDecision(t *testing.T) {
	s := NewIncentiveStore(nil)
	err := s.Decide(context.Background(), "i-1", "a-1", StatusPendingApproval, time.Now())
	assert.Error(t, err)
}

func TestStoreLifecycle(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, dbURL)
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, db.Migrate(ctx, pool))

	for _, store := range []*Store{NewIncentiveStore(pool), NewPenaltyStore(pool)} {
		employeeID := "e-" + uuid.NewString()
		id, err := store.Create(ctx, Entry{EmployeeID: employeeID, Period: "2025-03", Category: CategoryProject, Amount: decimal.RequireFromString("150.25")})
		require.NoError(t, err)

		found, err := store.FindApproved(ctx, employeeID, "2025-03")
		require.NoError(t, err)
		assert.Empty(t, found, "pending entries are not aggregated")

		at := time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)
		require.NoError(t, store.Decide(ctx, id, "mgr-1", StatusApproved, at))
		assert.True(t, errors.Is(store.Decide(ctx, id, "mgr-1", StatusRejected, at), ErrEntryNotFound))

		found, err = store.FindApproved(ctx, employeeID, "2025-03")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, StatusApproved, found[0].Status)
		assert.Equal(t, "mgr-1", found[0].ApprovedBy)
		assert.True(t, decimal.RequireFromString("150.25").Equal(found[0].Amount))

		found, err = store.FindApproved(ctx, employeeID, "2025-04")
		require.NoError(t, err)
		assert.Empty(t, found)
	}
}
