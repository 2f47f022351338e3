package apperr

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrLayoutNotFound   = errors.New("layout not found")
	ErrRenderEngine     = errors.New("render engine failure")
	ErrStoreUnavailable = errors.New("store unavailable")
)
