package errors

type (
	ServiceFoundNilArgument struct {
		Msg string
	}
	// ServiceUnknownReferralCode is returned when registration names a
	// referral code no account owns.
	ServiceUnknownReferralCode struct {
		Code string
	}
)

func (e *ServiceFoundNilArgument) Error() string {
	return e.Msg
}

func (e *ServiceUnknownReferralCode) Error() string {
	return "unknown referral code: " + e.Code
}
