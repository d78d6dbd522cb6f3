package transfer

import "fmt"

const (
	OpRead  = "read"
	OpWrite = "write"
)

// StreamError is an I/O failure on one side of a transfer. A source that ends
// before its declared size yields OpRead wrapping io.ErrUnexpectedEOF.
type StreamError struct {
	Op        string // OpRead (source) or OpWrite (sink)
	BytesDone int64  // bytes written to the sink before the failure
	Err       error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream %s failed after %d bytes: %v", e.Op, e.BytesDone, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}
