package p9

import "fmt"

// TransportError wraps an I/O failure beneath the codec. Fatal for the
// connection.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("9p: transport: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a decoder rejection or an unexpected response
// type. Fatal for the in-flight request.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("9p: protocol: %s", e.Msg) }

// ServerError wraps an RLERROR/RERROR reply. Carries the POSIX errno
// byte-for-byte so callers can act on it.
type ServerError struct {
	Errno uint32
	Ename string
}

func (e *ServerError) Error() string {
	if e.Ename != "" {
		return fmt.Sprintf("9p: server: %s (errno %d)", e.Ename, e.Errno)
	}
	return fmt.Sprintf("9p: server: errno %d", e.Errno)
}

// InvalidArgumentError reports a caller precondition violation: an
// oversize string, a walk with too many elements, use of a closed fid.
type InvalidArgumentError struct {
	Msg string
}

func (e *InvalidArgumentError) Error() string { return fmt.Sprintf("9p: invalid argument: %s", e.Msg) }

// CanceledError reports a Waiter released by TFLUSH or connection
// shutdown rather than by its matching reply.
type CanceledError struct {
	Msg string
}

func (e *CanceledError) Error() string {
	if e.Msg == "" {
		return "9p: canceled"
	}
	return fmt.Sprintf("9p: canceled: %s", e.Msg)
}

// AllocError reports resource exhaustion (out of tags, out of fids,
// out of memory).
type AllocError struct {
	Msg string
}

func (e *AllocError) Error() string { return fmt.Sprintf("9p: alloc: %s", e.Msg) }
