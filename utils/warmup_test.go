package utils

import (
	"testing"
	"time"

	"outreachly/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveWithoutScheduleIsUnrestricted(t *testing.T) {
	db := newTestDB(t)
	wg := NewWarmupGovernor(db)

	allowed, err := wg.Reserve(1, "acme.io")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestReservePausedScheduleIsUnrestricted(t *testing.T) {
	db := newTestDB(t)
	wg := NewWarmupGovernor(db)

	schedule := models.WarmupSchedule{
		UserID: 1, Domain: "acme.io",
		CurrentDailyLimit: 1, TargetDailyLimit: 10, IncrementPerDay: 5,
		EmailsSentToday: 1, Status: models.WarmupStatusPaused,
	}
	require.NoError(t, db.Create(&schedule).Error)

	allowed, err := wg.Reserve(1, "acme.io")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestReserveExhaustsDailyBudget(t *testing.T) {
	db := newTestDB(t)
	wg := NewWarmupGovernor(db)

	now := time.Now()
	schedule := models.WarmupSchedule{
		UserID: 1, Domain: "acme.io",
		CurrentDailyLimit: 2, TargetDailyLimit: 10, IncrementPerDay: 5,
		LastSendDate: &now, Status: models.WarmupStatusActive,
	}
	require.NoError(t, db.Create(&schedule).Error)

	for i := 0; i < 2; i++ {
		allowed, err := wg.Reserve(1, "acme.io")
		require.NoError(t, err)
		assert.True(t, allowed, "send %d should be admitted", i+1)
	}

	allowed, err := wg.Reserve(1, "acme.io")
	require.NoError(t, err)
	assert.False(t, allowed, "budget of 2 must refuse the third send")
}

func TestReleaseReturnsBudget(t *testing.T) {
	db := newTestDB(t)
	wg := NewWarmupGovernor(db)

	now := time.Now()
	schedule := models.WarmupSchedule{
		UserID: 1, Domain: "acme.io",
		CurrentDailyLimit: 1, TargetDailyLimit: 10, IncrementPerDay: 5,
		LastSendDate: &now, Status: models.WarmupStatusActive,
	}
	require.NoError(t, db.Create(&schedule).Error)

	allowed, err := wg.Reserve(1, "acme.io")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = wg.Reserve(1, "acme.io")
	require.NoError(t, err)
	require.False(t, allowed)

	require.NoError(t, wg.Release(1, "acme.io"))

	allowed, err = wg.Reserve(1, "acme.io")
	require.NoError(t, err)
	assert.True(t, allowed, "released slot is usable again")
}

func TestRolloverAdvancesLimitAndResetsCounter(t *testing.T) {
	db := newTestDB(t)
	wg := NewWarmupGovernor(db)

	yesterday := time.Now().Add(-26 * time.Hour)
	schedule := models.WarmupSchedule{
		UserID: 1, Domain: "acme.io",
		CurrentDailyLimit: 10, TargetDailyLimit: 12, IncrementPerDay: 5,
		EmailsSentToday: 10, LastSendDate: &yesterday,
		Status: models.WarmupStatusActive,
	}
	require.NoError(t, db.Create(&schedule).Error)

	allowed, err := wg.Reserve(1, "acme.io")
	require.NoError(t, err)
	assert.True(t, allowed, "new day grants fresh budget")

	var reloaded models.WarmupSchedule
	require.NoError(t, db.First(&reloaded, schedule.ID).Error)
	assert.Equal(t, 12, reloaded.CurrentDailyLimit, "limit advance is capped at target")
	assert.Equal(t, 1, reloaded.EmailsSentToday, "counter reset then incremented by the reserve")
	require.NotNil(t, reloaded.LastSendDate)
	assert.False(t, reloaded.LastSendDate.Before(StartOfDay(time.Now())))
}

func TestFirstEverSendDoesNotAdvanceLimit(t *testing.T) {
	db := newTestDB(t)
	wg := NewWarmupGovernor(db)

	schedule := models.WarmupSchedule{
		UserID: 1, Domain: "acme.io",
		CurrentDailyLimit: 5, TargetDailyLimit: 50, IncrementPerDay: 5,
		Status: models.WarmupStatusActive,
	}
	require.NoError(t, db.Create(&schedule).Error)

	allowed, err := wg.Reserve(1, "acme.io")
	require.NoError(t, err)
	assert.True(t, allowed)

	var reloaded models.WarmupSchedule
	require.NoError(t, db.First(&reloaded, schedule.ID).Error)
	assert.Equal(t, 5, reloaded.CurrentDailyLimit)
	assert.NotNil(t, reloaded.LastSendDate)
}
