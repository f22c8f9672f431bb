package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"smart-plug/internal/domain"
)

type Credentials struct {
	Identity string
	Secret   string
}

// PlugService is what trigger sources call. It owns the account session for
// the configured plug and runs one control attempt at a time.
type PlugService struct {
	directory  DeviceDirectory
	controller *PlugController
	creds      Credentials
	targetID   string
	notifier   Notifier
	recorder   OutcomeRecorder
	logger     *slog.Logger

	mu      sync.Mutex
	account *domain.Account
}

func NewPlugService(
	directory DeviceDirectory,
	creds Credentials,
	targetID string,
	notifier Notifier,
	recorder OutcomeRecorder,
	logger *slog.Logger,
) *PlugService {
	return &PlugService{
		directory:  directory,
		controller: NewPlugController(directory, logger),
		creds:      creds,
		targetID:   targetID,
		notifier:   notifier,
		recorder:   recorder,
		logger:     logger,
	}
}

func (s *PlugService) TargetID() string {
	return s.targetID
}

// SetPower performs one control attempt against the configured plug.
func (s *PlugService) SetPower(ctx context.Context, desired domain.Power) (domain.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	outcome, err := s.setPower(ctx, desired)
	s.recorder.Record(outcome, time.Since(start))

	if err != nil {
		s.logger.Error("set power failed",
			"device", s.targetID,
			"desired", desired,
			"outcome", outcome,
			"error", err,
		)
	} else {
		s.logger.Info("set power",
			"device", s.targetID,
			"desired", desired,
			"outcome", outcome,
		)
	}

	s.notify(ctx, outcome, err)

	return outcome, err
}

func (s *PlugService) setPower(ctx context.Context, desired domain.Power) (domain.Outcome, error) {
	account, err := s.session(ctx)
	if err != nil {
		return domain.OutcomeError, err
	}

	outcome, err := s.controller.SetPower(ctx, account, s.targetID, desired)
	s.dropRejectedSession(err)
	return outcome, err
}

// Status returns the plug as currently reported by the directory.
func (s *PlugService) Status(ctx context.Context) (domain.Device, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.session(ctx)
	if err != nil {
		return domain.Device{}, false, err
	}

	device, ok, err := s.controller.Status(ctx, account, s.targetID)
	s.dropRejectedSession(err)
	return device, ok, err
}

// session logs in on first use. Callers hold s.mu.
func (s *PlugService) session(ctx context.Context) (*domain.Account, error) {
	if s.account != nil {
		return s.account, nil
	}

	s.logger.Info("logging in", "identity", s.creds.Identity)
	account, err := s.directory.Login(ctx, s.creds.Identity, s.creds.Secret)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	s.account = account
	return account, nil
}

// dropRejectedSession forgets the account once the remote side rejects it so
// the next attempt logs in again. Callers hold s.mu.
func (s *PlugService) dropRejectedSession(err error) {
	if err != nil && errors.Is(err, domain.ErrAuth) {
		s.logger.Warn("session rejected, will log in again on next attempt")
		s.account = nil
	}
}

func (s *PlugService) notify(ctx context.Context, outcome domain.Outcome, err error) {
	var message string
	switch {
	case err != nil:
		message = fmt.Sprintf("Error controlling %s: %s", s.targetID, err.Error())
	case outcome.Toggled():
		message = fmt.Sprintf("%s: %s", s.targetID, outcome.Message())
	default:
		return
	}

	n := Notification{Device: s.targetID, Outcome: outcome, Message: message}
	if notifyErr := s.notifier.Notify(ctx, n); notifyErr != nil {
		s.logger.Error("notifying outcome", "error", notifyErr)
	}
}
