package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamStatus      = errors.New("unexpected upstream status")
	ErrInsufficientData    = errors.New("insufficient data")
	ErrUnsupportedModel    = errors.New("unsupported model")
	ErrInvalidRelation     = errors.New("invalid relation")
	ErrLockHeld            = errors.New("lock already held")
)
