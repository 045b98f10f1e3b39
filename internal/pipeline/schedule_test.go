package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronNext(t *testing.T) {
	after := time.Date(2026, 3, 10, 14, 7, 30, 0, time.UTC) // Tuesday

	cases := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", time.Date(2026, 3, 10, 14, 8, 0, 0, time.UTC)},
		{"0 3 * * *", time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2026, 3, 10, 14, 15, 0, 0, time.UTC)},
		{"30 9-17/4 * * *", time.Date(2026, 3, 10, 17, 30, 0, 0, time.UTC)},
		{"0 0 1 * *", time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"0 12 * * 0,6", time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		sched, err := parseCron(tc.expr)
		require.NoError(t, err, tc.expr)
		got, err := sched.next(after)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, tc.expr)
	}
}

func TestCronRejectsBadExpressions(t *testing.T) {
	for _, expr := range []string{
		"",
		"* * * *",
		"60 * * * *",
		"* 24 * * *",
		"5-1 * * * *",
		"*/0 * * * *",
		"a * * * *",
	} {
		assert.Error(t, ValidateCron(expr), expr)
	}
	assert.NoError(t, ValidateCron("0 3 1 * *"))
}
