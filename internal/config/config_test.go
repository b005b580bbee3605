package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azariacindy/MyStudyMate/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "Asia/Jakarta", cfg.TimeZone)
	assert.Equal(t, "full", cfg.Reminder.StagePlan)
	assert.Equal(t, "07:00", cfg.Reminder.FireTime)
	assert.Equal(t, "07:00", cfg.Reminder.OverdueFireTime)
	assert.Equal(t, time.Minute, cfg.Reminder.TickInterval)
	assert.Equal(t, 30, cfg.Reminder.DefaultLeadMinutes)
	assert.Equal(t, time.Minute, cfg.Reminder.CycleTimeout)
	assert.Empty(t, cfg.Reminder.DigestTime)
	assert.Empty(t, cfg.Redis.Addr)

	plan, err := cfg.StagePlan()
	require.NoError(t, err)
	assert.Len(t, plan.Stages(), 7)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("REMINDER_STAGE_PLAN", "legacy")
	t.Setenv("REMINDER_FIRE_TIME", "08:00")
	t.Setenv("REMINDER_OVERDUE_FIRE_TIME", "09:00")
	t.Setenv("REMINDER_WORKERS", "3")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REMINDER_CYCLE_TIMEOUT", "45s")
	t.Setenv("REMINDER_DIGEST_TIME", "06:30")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Reminder.CycleTimeout)
	assert.Equal(t, "06:30", cfg.Reminder.DigestTime)
	assert.Equal(t, 3, cfg.Reminder.Workers)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	plan, err := cfg.StagePlan()
	require.NoError(t, err)
	assert.Equal(t, []model.Stage{model.StageHMinus3, model.StageDDay, model.StageHPlus3}, plan.Stages())
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad_zone", "TIMEZONE", "Mars/Olympus"},
		{"bad_fire_time", "REMINDER_FIRE_TIME", "25:00"},
		{"bad_plan", "REMINDER_STAGE_PLAN", "hourly"},
		{"zero_workers", "REMINDER_WORKERS", "0"},
		{"bad_digest_time", "REMINDER_DIGEST_TIME", "morning"},
		{"lead_out_of_range", "REMINDER_DEFAULT_LEAD_MINUTES", "2000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestResolversReportBadValues(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.TimeZone = "Mars/Olympus"
	_, err = cfg.Location()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Mars/Olympus")

	cfg.Reminder.StagePlan = "hourly"
	_, err = cfg.StagePlan()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REMINDER_STAGE_PLAN")
}
