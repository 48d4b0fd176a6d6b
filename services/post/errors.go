package post

import "ideapulse-marketplace/pkg/errutil"

func ErrPostNotFound() error {
	return errutil.NotFound("post not found", nil)
}

func ErrPostNotOpen() error {
	return errutil.UnprocessableEntity("post is not accepting validations", nil)
}
