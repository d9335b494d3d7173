package remote

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-mission/pkg/protocol"
)

// ErrDisconnected is returned when the connection drops mid-request.
var ErrDisconnected = errors.New("remote: disconnected")

// RemoteError is an error reply from the vision process.
type RemoteError struct {
	Request protocol.MessageType
	Code    string
	Message string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %s: %s", e.Request, e.Code, e.Message)
}
