package config

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestLoadPlans(t *testing.T) {
	plans, err := LoadPlans()
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "Monthly Premium", plans[0].Name)
	assert.Equal(t, 30, plans[0].DurationDays)
	assert.Equal(t, 365, plans[1].DurationDays)
}

func TestParsePlansRejectsInvalid(t *testing.T) {
	tests := []struct {
		desc string
		raw  string
	}{
		{"missing name", "plans:\n  - price: 10\n    duration_days: 30\n"},
		{"zero duration", "plans:\n  - name: x\n    price: 10\n"},
		{"negative price", "plans:\n  - name: x\n    price: -1\n    duration_days: 5\n"},
		{"broken yaml", "plans: [\n"},
	}
	for _, tt := range tests {
		_, err := ParsePlans([]byte(tt.raw))
		assert.Error(t, err, tt.desc)
	}
}
