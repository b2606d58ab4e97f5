package stream

import (
	"context"
	"net/http"
)

// Conn one physical duplex connection. Read is called from a single goroutine;
// Write may be called concurrently.
type Conn interface {
	// Read blocks for the next message. A malformed frame yields an error
	// matching ErrInvalidMessage and leaves the connection usable.
	Read() (Message, error)
	Write(ctx context.Context, m Message) error
	Close() error
}

// Dialer opens connections. A rejected credential must yield an error
// matching ErrUnauthorized.
type Dialer interface {
	Dial(ctx context.Context, endpoint string, header http.Header) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, endpoint string, header http.Header) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, endpoint string, header http.Header) (Conn, error) {
	return f(ctx, endpoint, header)
}
