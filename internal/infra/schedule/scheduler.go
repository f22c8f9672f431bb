package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/robfig/cron.v2"

	"smart-plug/internal/domain"
)

type PowerSetter interface {
	SetPower(ctx context.Context, desired domain.Power) (domain.Outcome, error)
}

// Entry fires SetPower(Power) on every match of Spec. Spec uses the
// seconds-first cron format or a descriptor such as "@daily".
type Entry struct {
	Spec  string
	Power domain.Power
}

type Scheduler struct {
	cron    *cron.Cron
	service PowerSetter
	logger  *slog.Logger
	timeout time.Duration
}

func New(service PowerSetter, entries []Entry, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(),
		service: service,
		logger:  logger,
		timeout: 30 * time.Second,
	}

	for _, e := range entries {
		if e.Power != domain.PowerOn && e.Power != domain.PowerOff {
			return nil, fmt.Errorf("schedule %q: invalid power state %q", e.Spec, e.Power)
		}

		power := e.Power
		spec := e.Spec
		if _, err := s.cron.AddFunc(spec, func() { s.fire(spec, power) }); err != nil {
			return nil, fmt.Errorf("schedule %q: %w", spec, err)
		}
	}

	return s, nil
}

func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.logger.Info("scheduler starting", "entries", s.Len())
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) fire(spec string, power domain.Power) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	outcome, err := s.service.SetPower(ctx, power)
	if err != nil {
		s.logger.Error("scheduled set power failed", "schedule", spec, "power", power, "error", err)
		return
	}
	s.logger.Info("scheduled set power", "schedule", spec, "power", power, "outcome", outcome)
}
