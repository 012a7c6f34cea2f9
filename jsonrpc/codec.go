package jsonrpc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// MaxMessageSize bounds the body a Codec accepts.
const MaxMessageSize = 64 << 20

var (
	// ErrMissingLength is returned for a header block without Content-Length.
	ErrMissingLength = errors.New("jsonrpc: missing Content-Length header")
	// ErrMessageTooLarge is returned when Content-Length exceeds MaxMessageSize.
	ErrMessageTooLarge = errors.New("jsonrpc: message too large")
)

// Codec frames messages with the LSP base protocol headers. Reads must come
// from one goroutine; writes may come from many.
type Codec struct {
	r *bufio.Reader

	wmu sync.Mutex
	w   io.Writer
	buf []byte
}

func NewCodec(r io.Reader, w io.Writer) *Codec {
	return &Codec{r: bufio.NewReaderSize(r, 64<<10), w: w}
}

// Read returns the body of the next message. Headers other than
// Content-Length, such as Content-Type, are ignored.
func (c *Codec) Read() ([]byte, error) {
	length, sawHeader := -1, false
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && line == "" && length < 0 {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("jsonrpc: reading header: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if length >= 0 {
				break
			}
			if sawHeader {
				return nil, ErrMissingLength
			}
			// Tolerate blank lines between messages.
			continue
		}
		sawHeader = true
		key, val, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("jsonrpc: invalid Content-Length %q", val)
		}
		if n > MaxMessageSize {
			return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, n)
		}
		length = n
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(c.r, body); err != nil {
		return nil, fmt.Errorf("jsonrpc: reading body: %w", err)
	}
	return body, nil
}

// Write sends one message. Header and body go out in a single write so
// concurrent writers never interleave.
func (c *Codec) Write(body []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	c.buf = append(c.buf[:0], "Content-Length: "...)
	c.buf = strconv.AppendInt(c.buf, int64(len(body)), 10)
	c.buf = append(c.buf, "\r\n\r\n"...)
	c.buf = append(c.buf, body...)
	_, err := c.w.Write(c.buf)
	if cap(c.buf) > 1<<20 {
		c.buf = nil
	}
	return err
}
