package input

import "time"

// NewPlatform returns the capture/injection backend compiled for this
// platform, or ErrUnsupported.
func NewPlatform(interval time.Duration) (*Polling, error) {
	ptr, err := platformPointer()
	if err != nil {
		return nil, err
	}
	return NewPolling(ptr, interval), nil
}
