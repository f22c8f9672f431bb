package application

import (
	"time"

	"smart-plug/internal/domain"
)

type OutcomeRecorder interface {
	Record(outcome domain.Outcome, elapsed time.Duration)
}

type NoopRecorder struct{}

func (n *NoopRecorder) Record(_ domain.Outcome, _ time.Duration) {}
