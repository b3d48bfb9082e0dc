package repository

import "errors"

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrBadgeNotFound  = errors.New("badge not found")
	ErrDuplicateBadge = errors.New("duplicate badge code")
)
