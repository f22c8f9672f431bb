package schedule_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-plug/internal/domain"
	"smart-plug/internal/infra/schedule"
)

type chanSetter struct {
	calls chan domain.Power
}

func (c *chanSetter) SetPower(_ context.Context, desired domain.Power) (domain.Outcome, error) {
	c.calls <- desired
	return domain.OutcomeLeftOff, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_Entries(t *testing.T) {
	s, err := schedule.New(&chanSetter{}, []schedule.Entry{
		{Spec: "0 0 7 * * *", Power: domain.PowerOn},
		{Spec: "@midnight", Power: domain.PowerOff},
	}, discard())

	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
}

func TestNew_Invalid(t *testing.T) {
	_, err := schedule.New(&chanSetter{}, []schedule.Entry{{Spec: "not a cron", Power: domain.PowerOn}}, discard())
	assert.Error(t, err)

	_, err = schedule.New(&chanSetter{}, []schedule.Entry{{Spec: "@daily", Power: domain.Power("dim")}}, discard())
	assert.Error(t, err)
}

func TestScheduler_Fires(t *testing.T) {
	setter := &chanSetter{calls: make(chan domain.Power, 4)}
	s, err := schedule.New(setter, []schedule.Entry{{Spec: "@every 1s", Power: domain.PowerOff}}, discard())
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	select {
	case got := <-setter.calls:
		assert.Equal(t, domain.PowerOff, got)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for scheduled set power")
	}
}
