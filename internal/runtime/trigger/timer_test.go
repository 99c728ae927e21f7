package trigger

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExpression(t *testing.T) {
	for _, expr := range []string{EverySecond, EveryMinute, Hourly, Daily, "*/5 * * * *", "0 30 9 * * MON-FRI"} {
		assert.NoError(t, ParseExpression(expr), expr)
	}
	assert.Error(t, ParseExpression("every tuesday"))
}

func TestCronTimerBookkeeping(t *testing.T) {
	timer := NewCronTimer(nil)
	defer timer.Stop()

	h, err := timer.Schedule("a", Hourly, func() {})
	require.NoError(t, err)
	assert.Equal(t, Handle{Key: "a", Expression: Hourly}, h)
	assert.Equal(t, 1, timer.Len())

	_, err = timer.Schedule("a", Daily, func() {})
	assert.ErrorIs(t, err, ErrDuplicateKey)

	_, err = timer.Schedule("b", "bogus", func() {})
	assert.Error(t, err)

	require.NoError(t, timer.Unschedule(h))
	assert.Equal(t, 0, timer.Len())
	assert.ErrorIs(t, timer.Unschedule(h), ErrUnknownHandle)
}

func TestCronTimerFiresTrigger(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a real cron tick")
	}
	timer := NewCronTimer(nil)
	defer timer.Stop()

	var fired atomic.Int32
	rec := &recorder{}
	tr, err := New(timer, EverySecond, WithListener(rec))
	require.NoError(t, err)
	defer tr.Close()

	_, err = timer.Schedule("panics", EverySecond, func() {
		fired.Add(1)
		panic("boom")
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return rec.Len() > 0 }, 3*time.Second, 50*time.Millisecond)
	assert.Eventually(t, func() bool { return fired.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}
