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
	// ServiceMissingProof is returned when a deposit request carries no
	// payment proof reference.
	ServiceMissingProof struct {
	}
)

func (e *ServiceFoundNilArgument) Error() string {
	return e.Msg
}

func (e *ServiceIllegalAmount) Error() string {
	return fmt.Sprintf("amount %d is below the configured minimum of %d", e.Amount, e.Minimum)
}

func (e *ServiceMissingProof) Error() string {
	return "deposit request carries no payment proof reference"
}
