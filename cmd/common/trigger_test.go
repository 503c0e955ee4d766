package common_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/pricetracker/cmd/common"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/scheduler"
)

func TestTriggerFlags_Trigger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		flags    common.TriggerFlags
		wantKind string
		wantErr  bool
	}{
		{name: "fallback interval", flags: common.TriggerFlags{}, wantKind: "interval"},
		{name: "every", flags: common.TriggerFlags{Every: time.Hour}, wantKind: "interval"},
		{name: "cron", flags: common.TriggerFlags{Cron: "0 */6 * * *", Timezone: "America/Toronto"}, wantKind: "cron"},
		{name: "at", flags: common.TriggerFlags{At: "2026-12-01T09:00:00Z"}, wantKind: "date"},
		{name: "conflicting", flags: common.TriggerFlags{Every: time.Hour, Cron: "@daily"}, wantErr: true},
		{name: "bad cron", flags: common.TriggerFlags{Cron: "not a cron"}, wantErr: true},
		{name: "bad timezone", flags: common.TriggerFlags{Cron: "@daily", Timezone: "Mars/Base"}, wantErr: true},
		{name: "bad time", flags: common.TriggerFlags{At: "tomorrow"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			trigger, err := tt.flags.Trigger(6 * time.Hour)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, trigger.Kind())
		})
	}
}

func TestTriggerFlags_FallbackUsesDefaultInterval(t *testing.T) {
	t.Parallel()

	trigger, err := common.TriggerFlags{}.Trigger(6 * time.Hour)
	require.NoError(t, err)

	interval, ok := trigger.(scheduler.IntervalTrigger)
	require.True(t, ok)
	assert.Equal(t, 6*time.Hour, interval.Every)
}
