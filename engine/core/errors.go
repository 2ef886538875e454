package core

import (
	"errors"
	"fmt"
)

var (
	// ErrResourceNotFound is returned when a color/alpha pair cannot be resolved for a codename.
	ErrResourceNotFound = errors.New("resource not found for codename")
	// ErrAmbiguousResource is returned in strict mode when a slot matches more than one asset.
	ErrAmbiguousResource = errors.New("ambiguous resource for codename")
	ErrDimensionMismatch = errors.New("color and alpha dimensions differ")
	// ErrMalformedTextureData covers short or inconsistent compressed texture data.
	ErrMalformedTextureData     = errors.New("malformed texture data")
	ErrUnsupportedTextureFormat = fmt.Errorf("%w: unsupported texture format", ErrMalformedTextureData)
	ErrAllocationFailure        = errors.New("scratch buffer allocation failed")

	ErrUnknownContainer   = errors.New("unknown container format")
	ErrMalformedContainer = errors.New("malformed container")
	ErrNoTypeTree         = errors.New("serialized file has no type tree")

	ErrUnknown = errors.New("unknown")
)
