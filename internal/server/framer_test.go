package server

import (
	"errors"
	"io"
	"testing"
	"testing/iotest"
)

// chunkReader returns one chunk per Read, then err (io.EOF when nil).
type chunkReader struct {
	chunks []string
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks = r.chunks[1:]
	return n, nil
}

func TestFramerNext(t *testing.T) {
	tests := []struct {
		name    string
		chunks  []string
		maxSize int
		want    string
	}{
		{"CRLF terminated", []string{"FILEADD;test;content\r\n"}, 0, "FILEADD;test;content"},
		{"no terminator", []string{"FILEALL"}, 0, "FILEALL"},
		{"NUL padded", []string{"FILEALL\x00\x00"}, 0, "FILEALL"},
		{"leading noise trimmed", []string{"\n\rFILEALL\r\n"}, 0, "FILEALL"},
		{"CRLF noise then payload", []string{"\r\n", "FILEALL\r\n"}, 0, "FILEALL"},
		{"CRLF followed by payload in one read", []string{"\r\nFILEALL"}, 0, "FILEALL"},
		{"inner CRLF kept", []string{"a\r\nb\r\n"}, 0, "a\r\nb"},
		{"invalid UTF-8 replaced", []string{"name\xff\r\n"}, 0, "name\uFFFD"},
		{"unicode", []string{"FILEADD;café;ü\r\n"}, 0, "FILEADD;café;ü"},
		{"truncated to buffer size", []string{"abcdefgh"}, 4, "abcd"},
		{"orderly close", nil, 0, ""},
		{"noise then close", []string{"\r\n"}, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFramer(&chunkReader{chunks: tt.chunks}, tt.maxSize)
			got, err := f.Next()
			if err != nil {
				t.Fatalf("Next() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Next() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFramerOneReadPerMessage(t *testing.T) {
	f := NewFramer(&chunkReader{chunks: []string{"FILEALL\r\n", "FILEOPEN;a\r\n"}}, 0)
	for _, want := range []string{"FILEALL", "FILEOPEN;a", ""} {
		got, err := f.Next()
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if got != want {
			t.Errorf("Next() = %q, want %q", got, want)
		}
	}
}

func TestFramerReadError(t *testing.T) {
	boom := errors.New("connection reset")
	f := NewFramer(&chunkReader{err: boom}, 0)
	f.remoteAddr = "10.0.0.1:5000"

	_, err := f.Next()
	var readErr *TransportReadError
	if !errors.As(err, &readErr) {
		t.Fatalf("Next() error = %v, want *TransportReadError", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("TransportReadError should wrap the cause")
	}
	if readErr.RemoteAddr != "10.0.0.1:5000" {
		t.Errorf("RemoteAddr = %q", readErr.RemoteAddr)
	}
	if !IsTransportError(err) {
		t.Error("IsTransportError() = false")
	}
}

func TestFramerDataWithEOF(t *testing.T) {
	r := iotest.DataErrReader(&chunkReader{chunks: []string{"FILEALL\r\n"}})
	got, err := ReadMessage(r, 64)
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if got != "FILEALL" {
		t.Errorf("ReadMessage() = %q, want FILEALL", got)
	}
}

func TestNewFramerDefaultSize(t *testing.T) {
	if got := len(NewFramer(nil, 0).buf); got != DefaultBufferSize {
		t.Errorf("buffer size = %d, want %d", got, DefaultBufferSize)
	}
}
