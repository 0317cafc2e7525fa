package api

import "errors"

// Sentinel causes for API errors. They are wrapped in
// model.ErrInvalidArgument so they map to 400.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrMissingParam = errors.New("missing parameter")
)
