package model

import "errors"

var (
	ErrAppNotFound    = errors.New("app not found")
	ErrDeviceNotFound = errors.New("device not found")
)
