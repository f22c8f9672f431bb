package application

import (
	"context"

	"smart-plug/internal/domain"
)

// DeviceDirectory is the cloud account's view of its registered devices.
// Every call is a live network round trip.
type DeviceDirectory interface {
	Login(ctx context.Context, identity, secret string) (*domain.Account, error)
	ListDevices(ctx context.Context, account *domain.Account) ([]domain.Device, error)
	// Toggle flips the device's power state. It reports only whether the
	// request was accepted, never the resulting state.
	Toggle(ctx context.Context, account *domain.Account, device domain.Device) error
}
