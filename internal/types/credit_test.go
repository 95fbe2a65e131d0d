package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAlertPeriod_Start(t *testing.T) {
	// a Thursday afternoon
	now := time.Date(2025, time.April, 17, 15, 4, 5, 0, time.UTC)

	tests := []struct {
		period AlertPeriod
		want   time.Time
	}{
		{AlertPeriodDay, time.Date(2025, time.April, 17, 0, 0, 0, 0, time.UTC)},
		{AlertPeriodWeek, time.Date(2025, time.April, 14, 0, 0, 0, 0, time.UTC)},
		{AlertPeriodMonth, time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)},
		{"", time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.period.Start(now))
		})
	}

	sunday := time.Date(2025, time.April, 20, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, time.April, 14, 0, 0, 0, 0, time.UTC), AlertPeriodWeek.Start(sunday))
}

func TestAlertPeriod_Validate(t *testing.T) {
	assert.NoError(t, AlertPeriodWeek.Validate())
	assert.Error(t, AlertPeriod("fortnight").Validate())
	assert.Error(t, AlertPeriod("").Validate())
}
