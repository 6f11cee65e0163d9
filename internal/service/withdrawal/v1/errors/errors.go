package errors

import "fmt"

type (
	ServiceFoundNilArgument struct {
		Msg string
	}
	// ServiceIllegalAmount is returned when a request amount violates the
	// configured floor.
	ServiceIllegalAmount struct {
		Amount  int64
		Minimum int64
	}
	// ServiceEligibilityNotMet is returned when the account has fewer
	// confirmed referrals than the withdrawal programme requires.
	ServiceEligibilityNotMet struct {
		Required  int
		Confirmed int
	}
	// ServiceInvalidPayoutDetails is returned when the payout destination
	// fails method-specific validation.
	ServiceInvalidPayoutDetails struct {
		Msg string
	}
)

func (e *ServiceFoundNilArgument) Error() string {
	return e.Msg
}

func (e *ServiceIllegalAmount) Error() string {
	return fmt.Sprintf("amount %d is below the configured minimum of %d", e.Amount, e.Minimum)
}

func (e *ServiceEligibilityNotMet) Error() string {
	return fmt.Sprintf("withdrawal requires %d confirmed referrals, account has %d", e.Required, e.Confirmed)
}

func (e *ServiceInvalidPayoutDetails) Error() string {
	return e.Msg
}
