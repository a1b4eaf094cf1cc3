package miflora

import "errors"

var (
	errUnsupportedCommand = errors.New("miflora: unsupported command type")
	errCommandQueueFull   = errors.New("miflora: command queue full")
	errModeWriteback      = errors.New("miflora: mode characteristic did not read back as realtime-enabled")
)
