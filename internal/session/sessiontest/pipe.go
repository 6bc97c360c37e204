// Package sessiontest provides an in-memory transport for session tests.
package sessiontest

import (
	"errors"
	"io"
	"sync"
)

var errClosed = errors.New("pipe closed")

// Conn is one end of an in-memory frame pipe
type Conn struct {
	name       string
	in         <-chan []byte
	out        chan<- []byte
	closed     chan struct{}
	peerClosed <-chan struct{}
	once       sync.Once
}

// Pipe returns two connected ends. Frames written on one are read on the other.
func Pipe(aName, bName string) (*Conn, *Conn) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	a := &Conn{name: aName, in: ba, out: ab, closed: make(chan struct{})}
	b := &Conn{name: bName, in: ab, out: ba, closed: make(chan struct{})}
	a.peerClosed = b.closed
	b.peerClosed = a.closed
	return a, b
}

func (c *Conn) ReadFrame() ([]byte, error) {
	select {
	case f := <-c.in:
		return f, nil
	case <-c.closed:
		return nil, errClosed
	case <-c.peerClosed:
		// Drain what the peer wrote before closing.
		select {
		case f := <-c.in:
			return f, nil
		default:
			return nil, io.EOF
		}
	}
}

func (c *Conn) WriteFrame(frame []byte) error {
	select {
	case <-c.closed:
		return errClosed
	case <-c.peerClosed:
		return io.ErrClosedPipe
	default:
	}
	select {
	case c.out <- append([]byte(nil), frame...):
		return nil
	case <-c.closed:
		return errClosed
	case <-c.peerClosed:
		return io.ErrClosedPipe
	}
}

func (c *Conn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *Conn) RemoteAddr() string { return c.name }

// Closed reports whether this end has been closed
func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
