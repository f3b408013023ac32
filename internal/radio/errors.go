package radio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/srg/bluest/pkg/bluest"
)

var (
	ErrNotConnected     = errors.New("device not connected")
	ErrAlreadyConnected = errors.New("device already connected")
	ErrBluetoothOff     = errors.New("bluetooth is turned off")
	ErrNotInitialized   = errors.New("connection is not initialized")
	ErrUnsupported      = errors.New("operation not supported by the radio")
)

// NormalizeError maps the free-form messages of BLE stacks to the sentinels
// above. The original error stays in the chain.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrNotConnected, ErrAlreadyConnected, ErrBluetoothOff, ErrNotInitialized, ErrUnsupported} {
		if errors.Is(err, known) {
			return err
		}
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "have=4 want=5"), containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	case containsIgnoreCase(msg, "device not connected"), containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "connection is not initialized"):
		return fmt.Errorf("%w: %v", ErrNotInitialized, err)
	default:
		return err
	}
}

// LinkError normalizes err and wraps it as a bluest LinkError for op.
func LinkError(op string, err error) error {
	if err == nil {
		return nil
	}
	return bluest.Wrap(bluest.LinkError, NormalizeError(err), op)
}

// IsLinkLost reports whether err means the link is gone.
func IsLinkLost(err error) bool {
	return errors.Is(err, ErrNotConnected) || errors.Is(err, ErrNotInitialized)
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
