package ledger

import "ideapulse-marketplace/pkg/errutil"

func ErrAccountNotFound() error {
	return errutil.NotFound("account not found", nil)
}

func ErrInsufficientFunds() error {
	return errutil.UnprocessableEntity("insufficient available balance", nil)
}
