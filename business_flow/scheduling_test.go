package businessflow

import (
	"testing"
	"time"

	"github.com/amirphl/Kusanagi/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWeekday(t *testing.T) {
	day, err := ParseWeekday("wednesday")
	require.NoError(t, err)
	assert.Equal(t, time.Wednesday, day)

	day, err = ParseWeekday("  Friday ")
	require.NoError(t, err)
	assert.Equal(t, time.Friday, day)

	_, err = ParseWeekday("someday")
	assert.ErrorIs(t, err, ErrInvalidWeekday)

	_, err = ParseWeekday("")
	assert.ErrorIs(t, err, ErrInvalidWeekday)
}

func TestParseTimeOfDay(t *testing.T) {
	hour, minute, err := ParseTimeOfDay("07:30")
	require.NoError(t, err)
	assert.Equal(t, 7, hour)
	assert.Equal(t, 30, minute)

	_, _, err = ParseTimeOfDay("25:00")
	assert.ErrorIs(t, err, ErrInvalidTimeOfDay)

	_, _, err = ParseTimeOfDay("9am")
	assert.ErrorIs(t, err, ErrInvalidTimeOfDay)
}

func TestNextSendInstant_NoWeekdayConfigured(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	got, err := NextSendInstant(nil, nil, now)
	require.NoError(t, err)
	assert.Nil(t, got)

	empty := ""
	got, err = NextSendInstant(&empty, nil, now)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNextSendInstant_StrictlyFutureForEveryWeekday(t *testing.T) {
	// A Monday at noon
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	require.Equal(t, time.Monday, now.Weekday())

	days := []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}
	for _, day := range days {
		day := day
		t.Run(day, func(t *testing.T) {
			got, err := NextSendInstant(utils.ToPtr(day), utils.ToPtr("09:00"), now)
			require.NoError(t, err)
			require.NotNil(t, got)

			assert.True(t, got.After(now), "send instant must be strictly in the future")
			assert.True(t, got.Sub(now) <= 7*24*time.Hour, "send instant must be within one week")

			want, err := ParseWeekday(day)
			require.NoError(t, err)
			assert.Equal(t, want, got.Weekday())
			assert.Equal(t, 9, got.Hour())
			assert.Equal(t, 0, got.Minute())
			assert.Equal(t, 0, got.Second())
			assert.Equal(t, 0, got.Nanosecond())
		})
	}
}

func TestNextSendInstant_SameDayFutureTime(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC) // Monday 08:00

	got, err := NextSendInstant(utils.ToPtr("monday"), utils.ToPtr("09:00"), now)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), *got)
}

func TestNextSendInstant_SameDayPastTimeRollsAWeek(t *testing.T) {
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC) // Monday 10:00

	got, err := NextSendInstant(utils.ToPtr("monday"), utils.ToPtr("09:00"), now)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC), *got)
}

func TestNextSendInstant_ExactPreferredInstantRollsAWeek(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) // Monday 09:00 sharp

	got, err := NextSendInstant(utils.ToPtr("monday"), utils.ToPtr("09:00"), now)
	require.NoError(t, err)
	require.NotNil(t, got)

	// "Strictly after now" excludes the current instant itself
	assert.Equal(t, time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC), *got)
}

func TestNextSendInstant_DefaultsTimeOfDay(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) // Monday noon

	got, err := NextSendInstant(utils.ToPtr("tuesday"), nil, now)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC), *got)
}

func TestNextSendInstant_InvalidInputs(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	_, err := NextSendInstant(utils.ToPtr("noday"), nil, now)
	assert.ErrorIs(t, err, ErrInvalidWeekday)

	_, err = NextSendInstant(utils.ToPtr("monday"), utils.ToPtr("nine"), now)
	assert.ErrorIs(t, err, ErrInvalidTimeOfDay)
}
