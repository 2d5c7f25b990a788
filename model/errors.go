package model

import "errors"

// Sentinel errors returned (wrapped) by structural mutations. A mutation that
// fails leaves the project unchanged.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidID        = errors.New("invalid id")
	ErrDuplicateID      = errors.New("duplicate id")
	ErrSelfBinding      = errors.New("binding source and target must differ")
	ErrTypeMismatch     = errors.New("type mismatch")
	ErrDuplicateBinding = errors.New("binding already exists")
	ErrInvalidConfig    = errors.New("invalid config value")
	ErrCircularTemplate = errors.New("circular template usage")
	ErrInUse            = errors.New("in use")
	ErrInvalidExport    = errors.New("invalid export")
)
