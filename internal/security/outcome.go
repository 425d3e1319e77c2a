package security

import "context"

// Outcome is the result of a login attempt. Failures are values, not errors.
type Outcome int

const (
	OutcomeOK          Outcome = 0
	OutcomeFailed      Outcome = 1
	OutcomeDenied      Outcome = 2
	OutcomeUnavailable Outcome = 3
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeFailed:
		return "failed"
	case OutcomeDenied:
		return "denied"
	case OutcomeUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// LoginFunc signs an already resolved identity on. Invitations hands the
// identity it resolved or provisioned to one of these.
type LoginFunc func(ctx context.Context, identity *Identity) (Outcome, error)
