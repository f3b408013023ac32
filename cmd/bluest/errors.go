package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/bluest/internal/radio"
	"github.com/srg/bluest/pkg/bluest"
)

// Command-level errors
var (
	// ErrConnectionLost means the node dropped the link while a command was
	// still using it.
	ErrConnectionLost = errors.New("connection lost")
	// ErrDeviceNotFound means no BlueST advertisement came from the address
	// before the scan timed out.
	ErrDeviceNotFound = errors.New("device not found")
)

var kindHints = map[bluest.ErrorKind]string{
	bluest.UnsupportedPayloadLength:   "not a BlueST advertisement (unexpected manufacturer data length)",
	bluest.UnknownManufacturerID:      "not a BlueST advertisement (unknown manufacturer)",
	bluest.UnsupportedProtocolVersion: "unsupported BlueST protocol version",
	bluest.UnknownDeviceType:          "unknown BlueST device type",
	bluest.InvalidAdvertisingData:     "invalid advertising data",
	bluest.InsufficientData:           "payload too short",
	bluest.CatalogLookupFailed:        "catalog unavailable",
	bluest.LinkError:                  "Bluetooth link failure",
}

// FormatUserError turns err into a one-line message for the terminal.
// Known failures get a hint in front of the technical detail.
func FormatUserError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("operation timed out: %v", err)
	case errors.Is(err, radio.ErrBluetoothOff):
		return "Bluetooth is turned off or not available, turn it on and retry"
	case errors.Is(err, ErrConnectionLost):
		return fmt.Sprintf("the device dropped the connection: %v", err)
	case errors.Is(err, radio.ErrUnsupported):
		return fmt.Sprintf("not supported on this platform: %v", err)
	}

	var be *bluest.Error
	if errors.As(err, &be) {
		if hint, ok := kindHints[be.Kind]; ok {
			return fmt.Sprintf("%s: %v", hint, err)
		}
	}
	return err.Error()
}
