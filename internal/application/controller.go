package application

import (
	"context"
	"fmt"
	"log/slog"

	"smart-plug/internal/domain"
)

// PlugController drives one device towards a desired power state, issuing at
// most one toggle per call. It keeps no state between calls.
type PlugController struct {
	directory DeviceDirectory
	logger    *slog.Logger
}

func NewPlugController(directory DeviceDirectory, logger *slog.Logger) *PlugController {
	return &PlugController{
		directory: directory,
		logger:    logger,
	}
}

// SetPower re-reads the device list, then toggles the target only when its
// reported status differs from desired or is unknown. The returned error is
// non-nil exactly when the outcome is OutcomeError.
func (c *PlugController) SetPower(ctx context.Context, account *domain.Account, targetID string, desired domain.Power) (domain.Outcome, error) {
	if desired != domain.PowerOn && desired != domain.PowerOff {
		return domain.OutcomeError, fmt.Errorf("invalid power state %q", desired)
	}

	devices, err := c.directory.ListDevices(ctx, account)
	if err != nil {
		return domain.OutcomeError, fmt.Errorf("listing devices: %w", err)
	}

	device, ok := domain.FindDevice(devices, targetID)
	if !ok {
		c.logger.Debug("target not in device list", "device", targetID, "devices", len(devices))
		return domain.OutcomePlugNotFound, nil
	}

	var success domain.Outcome
	switch device.Status {
	case domain.StatusOn:
		if desired == domain.PowerOn {
			return domain.OutcomeLeftOn, nil
		}
		success = domain.OutcomeTurnedOff
	case domain.StatusOff:
		if desired == domain.PowerOff {
			return domain.OutcomeLeftOff, nil
		}
		success = domain.OutcomeTurnedOn
	default:
		// The real state can't be known; one flip is the only bounded action.
		c.logger.Warn("device status unknown, toggling blindly", "device", targetID, "desired", desired)
		success = domain.OutcomeToggledBlindly
	}

	if err := c.directory.Toggle(ctx, account, device); err != nil {
		return domain.OutcomeError, fmt.Errorf("toggling %s: %w", targetID, err)
	}

	return success, nil
}

// Status reports the target's current status without touching it.
func (c *PlugController) Status(ctx context.Context, account *domain.Account, targetID string) (domain.Device, bool, error) {
	devices, err := c.directory.ListDevices(ctx, account)
	if err != nil {
		return domain.Device{}, false, fmt.Errorf("listing devices: %w", err)
	}

	device, ok := domain.FindDevice(devices, targetID)
	return device, ok, nil
}
