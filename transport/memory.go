package transport

import (
	"io"
	"sync"
)

// MemoryPipe returns two connected in-process transports, used by tests and
// by embedders that run the server in the same process as the client.
// Writes never block; reads block until data arrives or either end closes.
func MemoryPipe() (client, server Transport) {
	up, down := newBuffer(), newBuffer()
	return &memEnd{in: down, out: up}, &memEnd{in: up, out: down}
}

type memEnd struct{ in, out *buffer }

func (m *memEnd) Read(p []byte) (int, error)  { return m.in.read(p) }
func (m *memEnd) Write(p []byte) (int, error) { return m.out.write(p) }

// Close shuts both directions, so the peer sees EOF.
func (m *memEnd) Close() error {
	m.in.close()
	m.out.close()
	return nil
}

// buffer is an unbounded byte queue. ready is closed and replaced on every
// state change so readers can wait without holding mu.
type buffer struct {
	mu     sync.Mutex
	data   []byte
	closed bool
	ready  chan struct{}
}

func newBuffer() *buffer { return &buffer{ready: make(chan struct{})} }

func (b *buffer) wake() {
	close(b.ready)
	b.ready = make(chan struct{})
}

func (b *buffer) write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, io.ErrClosedPipe
	}
	b.data = append(b.data, p...)
	b.wake()
	return len(p), nil
}

func (b *buffer) read(p []byte) (int, error) {
	for {
		b.mu.Lock()
		if len(b.data) > 0 {
			n := copy(p, b.data)
			b.data = b.data[n:]
			if len(b.data) == 0 {
				b.data = nil
			}
			b.mu.Unlock()
			return n, nil
		}
		if b.closed {
			b.mu.Unlock()
			return 0, io.EOF
		}
		ready := b.ready
		b.mu.Unlock()
		<-ready
	}
}

func (b *buffer) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		b.wake()
	}
}
