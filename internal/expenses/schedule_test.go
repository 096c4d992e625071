package expenses

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextDueDate(t *testing.T) {
	cases := []struct {
		name   string
		anchor time.Time
		rule   Recurrence
		want   time.Time
	}{
		{"weekly", day(2024, 3, 1), Weekly, day(2024, 3, 8)},
		{"weekly crosses month", day(2024, 2, 27), Weekly, day(2024, 3, 5)},
		{"monthly", day(2024, 1, 15), Monthly, day(2024, 2, 15)},
		{"monthly clamps leap february", day(2024, 1, 31), Monthly, day(2024, 2, 29)},
		{"monthly clamps february", day(2023, 1, 31), Monthly, day(2023, 2, 28)},
		{"monthly clamps 30 day month", day(2024, 3, 31), Monthly, day(2024, 4, 30)},
		{"monthly crosses year", day(2024, 12, 31), Monthly, day(2025, 1, 31)},
		{"quarterly", day(2024, 1, 10), Quarterly, day(2024, 4, 10)},
		{"quarterly clamps", day(2023, 11, 30), Quarterly, day(2024, 2, 29)},
		{"yearly", day(2023, 6, 1), Yearly, day(2024, 6, 1)},
		{"yearly from leap day", day(2024, 2, 29), Yearly, day(2025, 2, 28)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NextDueDate(tc.anchor, tc.rule)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.True(t, got.After(tc.anchor))
		})
	}
}

func TestNextDueDateIgnoresTimeOfDay(t *testing.T) {
	got, err := NextDueDate(time.Date(2024, 1, 31, 23, 15, 0, 0, time.UTC), Monthly)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 2, 29), got)
}

func TestNextDueDateUnknownRule(t *testing.T) {
	_, err := NextDueDate(day(2024, 1, 1), Recurrence("fortnightly"))
	require.ErrorIs(t, err, ErrInvalidRecurrence)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestScheduleIsIdempotent(t *testing.T) {
	e := Expense{ExpenseDate: day(2024, 1, 31), IsRecurring: true, Recurrence: Monthly, Amount: decimal.NewFromInt(10)}
	require.NoError(t, Schedule(&e))
	first := *e.NextDueDate
	require.NoError(t, Schedule(&e))
	assert.Equal(t, first, *e.NextDueDate)
	assert.Equal(t, day(2024, 1, 31), *e.AnchorDate)
}

func TestScheduleClearsOneOff(t *testing.T) {
	next := day(2024, 2, 1)
	e := Expense{ExpenseDate: day(2024, 1, 1), Recurrence: Monthly, NextDueDate: &next}
	require.NoError(t, Schedule(&e))
	assert.Nil(t, e.NextDueDate)
	assert.Nil(t, e.AnchorDate)
	assert.Empty(t, e.Recurrence)
}

func TestRollAdvancesMonotonically(t *testing.T) {
	e := Expense{ExpenseDate: day(2024, 1, 31), IsRecurring: true, Recurrence: Monthly}
	require.NoError(t, Schedule(&e))

	want := []time.Time{day(2024, 3, 29), day(2024, 4, 29), day(2024, 5, 29)}
	prev := *e.NextDueDate
	for _, w := range want {
		require.NoError(t, Roll(&e))
		assert.Equal(t, prev, *e.AnchorDate)
		assert.Equal(t, w, *e.NextDueDate)
		assert.True(t, e.NextDueDate.After(prev))
		prev = *e.NextDueDate
	}
}

func TestRollRejectsOneOff(t *testing.T) {
	e := Expense{ExpenseDate: day(2024, 1, 1)}
	assert.Error(t, Roll(&e))
}
