package domain

import "errors"

var (
	ErrProbeNotFound       = errors.New("probe not found")
	ErrNetworkNotFound     = errors.New("network not found")
	ErrEmptyInventory      = errors.New("inventory is empty")
	ErrMalformedInventory  = errors.New("inventory is malformed")
	ErrEngineStopped       = errors.New("engine stopped")
	ErrMeasurementNotFound = errors.New("measurement result not found")
)
