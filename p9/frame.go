package p9

import (
	"encoding/binary"
	"io"
)

// ReadFrame reads exactly one length-prefixed 9P frame from r: a
// 4-byte little-endian size (including itself) followed by size-4
// bytes of body. msize bounds the largest frame this caller will
// accept; 0 disables the bound (used only while negotiating VERSION,
// before msize is known).
//
// Short reads are retried by io.ReadFull; EOF encountered mid-frame is
// reported as a TransportError, not a bare io.ErrUnexpectedEOF, so
// callers can distinguish a clean shutdown (EOF on the 4-byte prefix)
// from a torn frame.
func ReadFrame(r io.Reader, msize uint32) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &TransportError{Err: err}
	}

	size := binary.LittleEndian.Uint32(hdr[:])
	if size < 4 {
		return nil, &ProtocolError{Msg: "frame size smaller than header"}
	}
	if msize != 0 && size > msize {
		return nil, &ProtocolError{Msg: "frame exceeds negotiated msize"}
	}

	buf := make([]byte, size)
	copy(buf, hdr[:])
	if _, err := io.ReadFull(r, buf[4:]); err != nil {
		return nil, &TransportError{Err: err}
	}
	return buf, nil
}

// WriteFrame writes b (a complete, already-encoded frame) to w.
// Callers in Multi-RPC mode are responsible for serializing calls to
// WriteFrame across goroutines (spec.md §4.2: writes are all-or-nothing
// under a lock so frames never interleave on the wire).
func WriteFrame(w io.Writer, b []byte) error {
	if _, err := w.Write(b); err != nil {
		return &TransportError{Err: err}
	}
	return nil
}
