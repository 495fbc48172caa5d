package message

import (
	"context"
	"net"
	"os"
	"syscall"
	"time"

	"codeberg.org/mutker/argon1d/internal/errors"
)

const defaultReadTimeout = time.Second

// Sender delivers a message to the running service.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Client sends messages to the listener bound at Path.
type Client struct {
	Path string
}

// NewClient returns a client for the socket at path.
func NewClient(path string) *Client {
	return &Client{Path: path}
}

// Send connects, writes one encoded message and closes the connection.
// It fails with ErrChannelUnavailable when nothing is listening.
func (c *Client) Send(ctx context.Context, m Message) error {
	errFactory := errors.New()

	frame, err := Encode(m)
	if err != nil {
		return err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.Path)
	if err != nil {
		return errFactory.Wrap(errors.ErrChannelUnavailable, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}

	if _, err := conn.Write(frame); err != nil {
		return errFactory.Wrap(errors.ErrChannelUnavailable, err)
	}

	return nil
}

// Send is a shorthand for NewClient(path).Send(ctx, m).
func Send(ctx context.Context, path string, m Message) error {
	return NewClient(path).Send(ctx, m)
}

// Listener accepts control connections on a unix socket.
type Listener struct {
	ln          *net.UnixListener
	path        string
	readTimeout time.Duration
}

// Listen binds the socket at path. It fails with ErrAlreadyBound when the
// endpoint is held by someone else.
func Listen(path string) (*Listener, error) {
	errFactory := errors.New()

	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, errFactory.Wrap(errors.ErrAlreadyBound, err)
		}
		return nil, errFactory.Wrap(errors.ErrLockFailed, err)
	}
	// Removal is done explicitly in Close.
	ln.SetUnlinkOnClose(false)

	return &Listener{
		ln:          ln,
		path:        path,
		readTimeout: defaultReadTimeout,
	}, nil
}

// Path returns the socket path.
func (l *Listener) Path() string {
	return l.path
}

// Accept waits for the next connection and decodes exactly one message from
// it. A malformed frame returns ErrProtocol; the listener stays usable. Any
// other error comes from the listener itself.
func (l *Listener) Accept() (Message, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if l.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(l.readTimeout))
	}

	return Decode(conn)
}

// Close stops listening and removes the socket file.
func (l *Listener) Close() error {
	errFactory := errors.New()

	closeErr := l.ln.Close()
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errFactory.Wrap(errors.ErrShutdownFailed, err)
	}
	if closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
		return errFactory.Wrap(errors.ErrShutdownFailed, closeErr)
	}

	return nil
}
