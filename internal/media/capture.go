package media

import (
	"fmt"
	"sync"
)

// AccessError reports a camera or microphone acquisition failure.
type AccessError struct {
	Facing FacingMode
	Err    error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("media access for facing mode %q failed: %v", e.Facing, e.Err)
}

func (e *AccessError) Unwrap() error { return e.Err }

// Stream is an acquired capture source. Stop releases the device.
type Stream interface {
	Stop()
}

// StreamOpener acquires a capture source for a facing mode.
type StreamOpener func(facing FacingMode) (Stream, error)

// CaptureController tracks at most one active capture stream. The
// camera is an exclusive resource: switching facing modes always stops
// the previous stream before the new one is requested.
type CaptureController struct {
	mu     sync.Mutex
	open   StreamOpener
	active Stream
	facing FacingMode
}

func NewCaptureController(open StreamOpener) *CaptureController {
	return &CaptureController{open: open}
}

// Switch tears down any active stream and acquires one for the given
// facing mode. On acquisition failure no stream remains active.
func (c *CaptureController) Switch(facing FacingMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		c.active.Stop()
		c.active = nil
	}

	s, err := c.open(facing)
	if err != nil {
		return &AccessError{Facing: facing, Err: err}
	}
	c.active = s
	c.facing = facing
	return nil
}

// Stop releases the active stream, if any.
func (c *CaptureController) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		c.active.Stop()
		c.active = nil
	}
}

// Active returns the facing mode of the current stream.
func (c *CaptureController) Active() (FacingMode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return "", false
	}
	return c.facing, true
}
