package application_test

import (
	"context"
	"sync"
	"time"

	"smart-plug/internal/application"
	"smart-plug/internal/domain"
)

type fakeDirectory struct {
	mu sync.Mutex

	devices   []domain.Device
	loginErr  error
	listErr   error
	toggleErr error
	// settle flips the listed status on a successful toggle, like a real plug would.
	settle bool

	logins   int
	lists    int
	toggled  []string
	accounts []*domain.Account
}

func (f *fakeDirectory) Login(_ context.Context, identity, secret string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &domain.Account{Identity: identity, ID: "acc-1", Token: "tok-" + secret}, nil
}

func (f *fakeDirectory) ListDevices(_ context.Context, account *domain.Account) ([]domain.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	f.accounts = append(f.accounts, account)
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Device, len(f.devices))
	copy(out, f.devices)
	return out, nil
}

func (f *fakeDirectory) Toggle(_ context.Context, _ *domain.Account, device domain.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggled = append(f.toggled, device.ID)
	if f.toggleErr != nil {
		return f.toggleErr
	}
	if f.settle {
		for i := range f.devices {
			if f.devices[i].ID != device.ID {
				continue
			}
			switch f.devices[i].Status {
			case domain.StatusOn:
				f.devices[i].Status = domain.StatusOff
			case domain.StatusOff:
				f.devices[i].Status = domain.StatusOn
			}
		}
	}
	return nil
}

type recordingNotifier struct {
	sent []application.Notification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, n application.Notification) error {
	r.sent = append(r.sent, n)
	return r.err
}

type recordingRecorder struct {
	outcomes []domain.Outcome
}

func (r *recordingRecorder) Record(outcome domain.Outcome, _ time.Duration) {
	r.outcomes = append(r.outcomes, outcome)
}
