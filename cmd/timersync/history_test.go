package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timersync/internal/domain"
)

func TestParseGoal(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"8", 8 * time.Hour},
		{"7.5", 7*time.Hour + 30*time.Minute},
		{"6h45m", 6*time.Hour + 45*time.Minute},
	}
	for _, tt := range tests {
		got, err := parseGoal(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := parseGoal("all day")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
