package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPollInterval_SelectsTightestApplicableStep(t *testing.T) {
	tests := []struct {
		name string
		age  time.Duration
		want time.Duration
	}{
		{"fresh order", 0, 15 * time.Second},
		{"just under first threshold", 90 * time.Second, 15 * time.Second},
		{"at first threshold", 5 * time.Minute, 60 * time.Second},
		{"well into second band", 10 * time.Minute, 60 * time.Second},
		{"at third threshold", 30 * time.Minute, 5 * time.Minute},
		{"far beyond last threshold", 48 * time.Hour, 15 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pollInterval(defaultSchedule, tt.age))
		})
	}
}
