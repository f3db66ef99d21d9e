package compensation

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payrollengine/internal/platform/apperr"
	"payrollengine/internal/platform/db"
)

func TestStoreCreateValidatesFirst(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Create(context.Background(), Structure{Name: "no window"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestStoreRoundTrip(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, dbURL)
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, db.Migrate(ctx, pool))

	store := NewStore(pool)
	dept := "dept-" + uuid.NewString()
	maxSS := decimal.NewFromInt(1000)
	id, err := store.Create(ctx, Structure{
		Name:          "round trip",
		Priority:      7,
		EffectiveFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Applicability: Applicability{Scope: ScopeDepartment, Departments: []string{dept}},
		FixedAllowances: []FixedAllowance{
			{Name: "housing", Type: AmountPercentage, Value: decimal.RequireFromString("12.5")},
		},
		Deductions: Deductions{SocialSecurity: &SocialSecurityRule{Percentage: decimal.NewFromInt(6), MaxAmount: &maxSS}},
	})
	require.NoError(t, err)

	all, err := store.ListStructures(ctx)
	require.NoError(t, err)
	var got *Structure
	for i := range all {
		if all[i].ID == id {
			got = &all[i]
		}
	}
	require.NotNil(t, got)
	assert.Equal(t, 7, got.Priority)
	assert.Equal(t, []string{dept}, got.Applicability.Departments)
	require.NotNil(t, got.Deductions.SocialSecurity)
	assert.True(t, maxSS.Equal(*got.Deductions.SocialSecurity.MaxAmount))
	assert.False(t, got.CreatedAt.IsZero())
}
