package application

import (
	"context"

	"smart-plug/internal/domain"
)

// Notification reports the result of one control attempt.
type Notification struct {
	Device  string
	Outcome domain.Outcome
	Message string
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type NoopNotifier struct{}

func (n *NoopNotifier) Notify(_ context.Context, _ Notification) error {
	return nil
}
