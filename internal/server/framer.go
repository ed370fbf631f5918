package server

import (
	"errors"
	"io"
	"strings"

	"github.com/muurk/filecloud/internal/logging"
)

// noiseCutset is stripped from both ends of every message.
const noiseCutset = "\r\n\x00"

// Framer extracts one message per read from a client stream. Messages are
// delimited by the half-duplex exchange itself: the client sends a request
// and waits for the response, so a single read returns a single request.
// There is no reassembly of requests split across reads.
type Framer struct {
	r          io.Reader
	remoteAddr string
	buf        []byte
}

// NewFramer returns a Framer reading at most maxSize bytes per message.
// A non-positive maxSize selects DefaultBufferSize.
func NewFramer(r io.Reader, maxSize int) *Framer {
	if maxSize <= 0 {
		maxSize = DefaultBufferSize
	}
	return &Framer{r: r, buf: make([]byte, maxSize)}
}

// Next reads the next message. It returns "" with a nil error when the peer
// closed the stream in an orderly way, and a *TransportReadError when the
// read itself failed.
//
// Some clients send a bare CR LF before the real payload. The extra read
// is conditional: it is issued only when the first read starts with CR LF
// and holds nothing but CR, LF and NUL. A read that starts with CR LF and
// also carries a payload is returned trimmed, without reading again.
func (f *Framer) Next() (string, error) {
	n, err := f.read()
	if err != nil || n == 0 {
		return "", err
	}

	if n >= 2 && f.buf[0] == '\r' && f.buf[1] == '\n' && isNoise(f.buf[:n]) {
		logging.LogRawBytes("Skipping line noise", f.buf[:n])
		n, err = f.read()
		if err != nil || n == 0 {
			return "", err
		}
	}

	msg := strings.ToValidUTF8(string(f.buf[:n]), "\uFFFD")
	return strings.Trim(msg, noiseCutset), nil
}

// read performs a single Read. Data returned together with an error is
// kept; the error resurfaces on the next read.
func (f *Framer) read() (int, error) {
	n, err := f.r.Read(f.buf)
	if n > 0 {
		return n, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return 0, nil
	}
	return 0, &TransportReadError{RemoteAddr: f.remoteAddr, Err: err}
}

func isNoise(b []byte) bool {
	for _, c := range b {
		if c != '\r' && c != '\n' && c != 0 {
			return false
		}
	}
	return true
}

// ReadMessage reads a single message of at most maxSize bytes from r.
func ReadMessage(r io.Reader, maxSize int) (string, error) {
	return NewFramer(r, maxSize).Next()
}
