// Package message implements the local control protocol used to drive the
// fan service: one frame per connection, a discriminant byte followed by an
// optional payload byte.
package message

import (
	"fmt"
	"io"

	"codeberg.org/mutker/argon1d/internal/errors"
)

const (
	tagStop   byte = 0x00
	tagSetFan byte = 0x01
)

// Message is a control command. The only implementations are Stop and SetFan.
type Message interface {
	fmt.Stringer
	isMessage()
}

// Stop asks the service to shut down.
type Stop struct{}

// SetFan asks the service to drive the fan at Speed percent.
type SetFan struct {
	Speed uint8
}

func (Stop) isMessage()   {}
func (SetFan) isMessage() {}

func (Stop) String() string { return "stop" }

func (m SetFan) String() string { return fmt.Sprintf("fan(%d)", m.Speed) }

// Encode returns the wire form of m.
func Encode(m Message) ([]byte, error) {
	switch m := m.(type) {
	case Stop:
		return []byte{tagStop}, nil
	case SetFan:
		return []byte{tagSetFan, m.Speed}, nil
	default:
		return nil, errors.New().WithData(errors.ErrInvalidArgument, fmt.Sprintf("unknown message %T", m))
	}
}

// Decode reads exactly one frame from r. Anything other than a complete
// Stop or SetFan frame fails with a protocol error.
func Decode(r io.Reader) (Message, error) {
	errFactory := errors.New()

	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:1]); err != nil {
		return nil, errFactory.Wrap(errors.ErrProtocol, err)
	}

	switch buf[0] {
	case tagStop:
		return Stop{}, nil
	case tagSetFan:
		if _, err := io.ReadFull(r, buf[1:]); err != nil {
			return nil, errFactory.Wrap(errors.ErrProtocol, err)
		}
		return SetFan{Speed: buf[1]}, nil
	default:
		return nil, errFactory.WithData(errors.ErrProtocol, fmt.Sprintf("unknown tag 0x%02x", buf[0]))
	}
}
