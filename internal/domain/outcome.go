package domain

// Outcome classifies a single power control attempt. Exactly one is produced
// per attempt.
type Outcome string

const (
	OutcomeTurnedOn       Outcome = "turned_on"
	OutcomeTurnedOff      Outcome = "turned_off"
	OutcomeLeftOn         Outcome = "left_on"
	OutcomeLeftOff        Outcome = "left_off"
	OutcomeToggledBlindly Outcome = "toggled_blindly"
	OutcomePlugNotFound   Outcome = "plug_not_found"
	OutcomeError          Outcome = "error"
)

// Outcomes lists every variant, in a stable order.
var Outcomes = []Outcome{
	OutcomeTurnedOn,
	OutcomeTurnedOff,
	OutcomeLeftOn,
	OutcomeLeftOff,
	OutcomeToggledBlindly,
	OutcomePlugNotFound,
	OutcomeError,
}

// Toggled reports whether a toggle call was issued and accepted.
func (o Outcome) Toggled() bool {
	return o == OutcomeTurnedOn || o == OutcomeTurnedOff || o == OutcomeToggledBlindly
}

// Message is the human readable rendering used by trigger sources.
func (o Outcome) Message() string {
	switch o {
	case OutcomeTurnedOn:
		return "Device turned on"
	case OutcomeTurnedOff:
		return "Device turned off"
	case OutcomeLeftOn:
		return "Device was already on"
	case OutcomeLeftOff:
		return "Device was already off"
	case OutcomeToggledBlindly:
		return "Device toggled!"
	case OutcomePlugNotFound:
		return "Plug not found"
	default:
		return "Failed to control device"
	}
}
