package motion

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// Link is the byte pipe to the actuator controller.
// Read must return (0, io.EOF) or a timeout error when nothing is buffered.
type Link interface {
	io.ReadWriteCloser
}

// OpenSerial opens the controller's UART. readTimeout bounds each listener read;
// the driver rounds it up to 100ms on Linux.
func OpenSerial(name string, baud int, readTimeout time.Duration) (Link, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: readTimeout,
	})
	if err != nil {
		return nil, &LinkError{Op: "open", Err: fmt.Errorf("%w: %s: %v", ErrLinkUnavailable, name, err)}
	}

	// Drop whatever the controller printed before we attached.
	if err := port.Flush(); err != nil {
		port.Close()
		return nil, &LinkError{Op: "open", Err: fmt.Errorf("%w: flush %s: %v", ErrLinkUnavailable, name, err)}
	}
	return port, nil
}
