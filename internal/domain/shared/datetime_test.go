package shared_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

func TestEnsureNaiveUTC_AcceptsUTC(t *testing.T) {
	in := time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)

	out, err := shared.EnsureNaiveUTC(in)

	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEnsureNaiveUTC_RejectsAwareTimestamp(t *testing.T) {
	bucharest := time.FixedZone("EET", 2*60*60)
	in := time.Date(2025, 3, 14, 12, 30, 0, 0, bucharest)

	_, err := shared.EnsureNaiveUTC(in)

	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrTzMismatch)
}

func TestEnsureNaiveUTC_ZeroPassesThrough(t *testing.T) {
	out, err := shared.EnsureNaiveUTC(time.Time{})

	require.NoError(t, err)
	assert.True(t, out.IsZero())
}

func TestParseWireTime_ConvertsOffsetToUTC(t *testing.T) {
	got, err := shared.ParseWireTime("2025-03-14T12:30:00+02:00")

	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC), got)
	assert.Equal(t, time.UTC, got.Location())
}

func TestParseWireTime_ReadsOffsetlessAsUTC(t *testing.T) {
	got, err := shared.ParseWireTime("2025-03-14 10:30:00")

	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC), got)
}

func TestParseWireTime_EmptyIsZero(t *testing.T) {
	got, err := shared.ParseWireTime("")

	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestParseWireTime_Garbage(t *testing.T) {
	_, err := shared.ParseWireTime("last tuesday")

	assert.Error(t, err)
}

func TestFormatWireTime_RoundTrip(t *testing.T) {
	in := time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)

	s := shared.FormatWireTime(in)
	back, err := shared.ParseWireTime(s)

	require.NoError(t, err)
	assert.Equal(t, "2025-03-14T10:30:00Z", s)
	assert.Equal(t, in, back)
}

func TestParseAccount(t *testing.T) {
	acc, err := shared.ParseAccount("main")
	require.NoError(t, err)
	assert.Equal(t, shared.AccountMain, acc)

	acc, err = shared.ParseAccount("fbe")
	require.NoError(t, err)
	assert.Equal(t, shared.AccountFBE, acc)

	_, err = shared.ParseAccount("sandbox")
	assert.Error(t, err)
}

func TestMockClock_SleepAdvances(t *testing.T) {
	clock := shared.NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	clock.Sleep(90 * time.Second)

	assert.Equal(t, time.Date(2025, 1, 1, 0, 1, 30, 0, time.UTC), clock.Now())
}
