package errors

type (
	ServiceFoundNilArgument struct {
		Msg string
	}
	// ServiceForeignBonus is returned when an account claims a bonus owned
	// by another referrer.
	ServiceForeignBonus struct {
		BonusID string
	}
	// ServiceBonusAlreadyClaimed is returned when the bonus has been paid
	// out through an approved claim.
	ServiceBonusAlreadyClaimed struct {
		BonusID string
	}
	// ServiceClaimAlreadyPending is returned when another claim for the
	// bonus is awaiting moderation.
	ServiceClaimAlreadyPending struct {
		BonusID string
	}
)

func (e *ServiceFoundNilArgument) Error() string {
	return e.Msg
}

func (e *ServiceForeignBonus) Error() string {
	return "bonus " + e.BonusID + " belongs to another referrer"
}

func (e *ServiceBonusAlreadyClaimed) Error() string {
	return "bonus " + e.BonusID + " has already been claimed"
}

func (e *ServiceClaimAlreadyPending) Error() string {
	return "a claim for bonus " + e.BonusID + " is already pending"
}
