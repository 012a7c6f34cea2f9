package transport

import (
	"io"
	"os"
	"sync"
)

// stream joins a read side and a write side into one Transport.
type stream struct {
	r io.ReadCloser
	w io.WriteCloser

	// closeWriter is false when the write side is shared with something
	// else, as stdout is under node-ipc.
	closeWriter bool

	once sync.Once
	err  error
}

// Stdio serves on the process's standard input and output.
func Stdio() Transport {
	return &stream{r: os.Stdin, w: os.Stdout, closeWriter: true}
}

// NodeIPC serves a parent that spawned the server with an extra pipe on
// fd 3, the way the VS Code extension host does: requests arrive on fd 3
// and replies go to stdout.
func NodeIPC() Transport {
	return &stream{r: os.NewFile(3, "node-ipc"), w: os.Stdout}
}

func (s *stream) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s *stream) Write(p []byte) (int, error) { return s.w.Write(p) }

// Close is idempotent and reports the first error seen.
func (s *stream) Close() error {
	s.once.Do(func() {
		s.err = s.r.Close()
		if s.closeWriter {
			if err := s.w.Close(); s.err == nil {
				s.err = err
			}
		}
	})
	return s.err
}
