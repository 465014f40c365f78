package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/careloop/backend/internal/domain/privilege"
	"github.com/careloop/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupGrantTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&privilege.Definition{}, &privilege.Grant{})
	require.NoError(t, err)

	return db
}

func mustNewGrant(t *testing.T, planID, privilegeName string, allowedValue int64) *privilege.Grant {
	t.Helper()
	def, err := privilege.NewDefinition(privilegeName, privilegeName)
	require.NoError(t, err)
	grant, err := privilege.NewGrant(planID, def, allowedValue)
	require.NoError(t, err)
	return grant
}

func TestGrantRepository_SaveAndFind(t *testing.T) {
	db := setupGrantTestDB(t)
	repo := NewGormGrantRepository(db)
	ctx := context.Background()

	t.Run("saves and finds by ID", func(t *testing.T) {
		grant := mustNewGrant(t, "premium", "Teleconsultation", 5)
		grant.WithDailyLimit(2).WithPeriodLength(30 * 24 * time.Hour)

		require.NoError(t, repo.Save(ctx, grant))

		found, err := repo.FindByID(ctx, grant.ID)
		require.NoError(t, err)
		assert.Equal(t, "premium", found.PlanID)
		assert.Equal(t, "Teleconsultation", found.PrivilegeName)
		assert.Equal(t, int64(5), found.AllowedValue)
		assert.Equal(t, 30*24*time.Hour, found.PeriodLength)
		require.NotNil(t, found.DailyLimit)
		assert.Equal(t, int64(2), *found.DailyLimit)
		assert.Nil(t, found.WeeklyLimit)
	})

	t.Run("finds by plan and name", func(t *testing.T) {
		grant := mustNewGrant(t, "premium", "MedicationRefill", privilege.AllowedValueUnlimited)
		require.NoError(t, repo.Save(ctx, grant))

		found, err := repo.FindByPlanAndName(ctx, "premium", "MedicationRefill")
		require.NoError(t, err)
		assert.Equal(t, grant.ID, found.ID)
		assert.True(t, found.IsUnlimited())
	})

	t.Run("name match is case-sensitive", func(t *testing.T) {
		_, err := repo.FindByPlanAndName(ctx, "premium", "medicationrefill")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("returns ErrNotFound for unknown pair", func(t *testing.T) {
		_, err := repo.FindByPlanAndName(ctx, "basic", "Teleconsultation")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGrantRepository_SaveUpsertsOnPlanAndName(t *testing.T) {
	db := setupGrantTestDB(t)
	repo := NewGormGrantRepository(db)
	ctx := context.Background()

	first := mustNewGrant(t, "premium", "Teleconsultation", 5)
	require.NoError(t, repo.Save(ctx, first))

	// A second save for the same (plan, privilege) replaces the quota
	// configuration instead of adding a row
	second := mustNewGrant(t, "premium", "Teleconsultation", 10)
	second.WithWeeklyLimit(4)
	require.NoError(t, repo.Save(ctx, second))

	grants, err := repo.FindByPlan(ctx, "premium")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, int64(10), grants[0].AllowedValue)
	require.NotNil(t, grants[0].WeeklyLimit)
	assert.Equal(t, int64(4), *grants[0].WeeklyLimit)
}

func TestGrantRepository_FindByPlan(t *testing.T) {
	db := setupGrantTestDB(t)
	repo := NewGormGrantRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, mustNewGrant(t, "premium", "Teleconsultation", 5)))
	require.NoError(t, repo.Save(ctx, mustNewGrant(t, "premium", "MedicationRefill", 3)))
	require.NoError(t, repo.Save(ctx, mustNewGrant(t, "basic", "Teleconsultation", 1)))

	t.Run("returns only the plan's grants ordered by name", func(t *testing.T) {
		grants, err := repo.FindByPlan(ctx, "premium")
		require.NoError(t, err)
		require.Len(t, grants, 2)
		assert.Equal(t, "MedicationRefill", grants[0].PrivilegeName)
		assert.Equal(t, "Teleconsultation", grants[1].PrivilegeName)
	})

	t.Run("returns empty slice for unknown plan", func(t *testing.T) {
		grants, err := repo.FindByPlan(ctx, "enterprise")
		require.NoError(t, err)
		assert.Empty(t, grants)
	})
}

func TestGrantRepository_Delete(t *testing.T) {
	db := setupGrantTestDB(t)
	repo := NewGormGrantRepository(db)
	ctx := context.Background()

	t.Run("deletes an existing grant", func(t *testing.T) {
		grant := mustNewGrant(t, "premium", "Teleconsultation", 5)
		require.NoError(t, repo.Save(ctx, grant))

		require.NoError(t, repo.Delete(ctx, grant.ID))

		_, err := repo.FindByID(ctx, grant.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("returns ErrNotFound for unknown grant", func(t *testing.T) {
		err := repo.Delete(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
