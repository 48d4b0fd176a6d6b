package validation

import "ideapulse-marketplace/pkg/errutil"

func ErrValidationNotFound() error {
	return errutil.NotFound("validation not found", nil)
}

func ErrAlreadyValidated() error {
	return errutil.Conflict("this post has already been validated by this user", nil)
}

func ErrSelfValidation() error {
	return errutil.Forbidden("authors cannot validate their own posts", nil)
}

func ErrTierFull() error {
	return errutil.UnprocessableEntity("this validation tier is full", nil)
}

func ErrNotAuthor() error {
	return errutil.Forbidden("only the post author can review detailed validations", nil)
}

func ErrNotPending() error {
	return errutil.UnprocessableEntity("validation is not pending review", nil)
}
