package domain

import "strings"

// Status is the power state a device last reported. The zero value is
// StatusUnknown so a missing or unparseable report never reads as off.
type Status int

const (
	StatusUnknown Status = iota
	StatusOn
	StatusOff
)

func (s Status) String() string {
	switch s {
	case StatusOn:
		return "on"
	case StatusOff:
		return "off"
	default:
		return "unknown"
	}
}

// ParseStatus maps a remote status string onto the tri-state domain.
func ParseStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on":
		return StatusOn
	case "off":
		return StatusOff
	default:
		return StatusUnknown
	}
}

// Power is the state a caller wants the plug to end up in.
type Power string

const (
	PowerOn  Power = "on"
	PowerOff Power = "off"
)

func ParsePower(raw string) (Power, bool) {
	switch Power(strings.ToLower(strings.TrimSpace(raw))) {
	case PowerOn:
		return PowerOn, true
	case PowerOff:
		return PowerOff, true
	default:
		return "", false
	}
}

type Device struct {
	ID     string
	Name   string
	Type   string
	Status Status
}

// FindDevice returns the first device whose ID equals id.
func FindDevice(devices []Device, id string) (Device, bool) {
	for _, d := range devices {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}
