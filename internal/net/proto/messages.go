// Package proto implements the binary websocket protocol. Every payload starts
// with a one-byte tag; multi-byte integers and event floats are big-endian,
// frame transforms are little-endian float32.
package proto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Tag identifies the payload kind in byte 0.
type Tag uint8

const (
	TagUsers     Tag = 0
	TagHeartbeat Tag = 1
	TagFrame     Tag = 2
	TagContact   Tag = 3
	TagColor     Tag = 4
	TagMotion    Tag = 5
)

func (t Tag) String() string {
	switch t {
	case TagUsers:
		return "users"
	case TagHeartbeat:
		return "heartbeat"
	case TagFrame:
		return "frame"
	case TagContact:
		return "contact"
	case TagColor:
		return "color"
	case TagMotion:
		return "motion"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

const (
	heartbeatEchoLen = 1 + 1 + 8
	colorMinLen      = 1 + 1
	motionLen        = 1 + 1 + 1 + 4*3
)

var (
	ErrEmpty      = errors.New("proto: empty payload")
	ErrUnknownTag = errors.New("proto: unknown tag")
	ErrMalformed  = errors.New("proto: malformed payload")
)

// Message is a decoded client payload: HeartbeatEcho, SetColor or Motion.
type Message interface {
	Tag() Tag
}

// HeartbeatEcho returns the server time from a heartbeat, in unix milliseconds.
type HeartbeatEcho struct {
	EchoedTime int64
}

// SetColor carries the client's chosen hex color.
type SetColor struct {
	Color string
}

// Motion carries the client's pointer position and button state.
type Motion struct {
	Pressed bool
	X, Y, Z float32
}

func (HeartbeatEcho) Tag() Tag { return TagHeartbeat }
func (SetColor) Tag() Tag      { return TagColor }
func (Motion) Tag() Tag        { return TagMotion }

// Decode parses a client payload. Unknown tags and short payloads return an
// error wrapping ErrUnknownTag or ErrMalformed.
func Decode(payload []byte) (Message, error) {
	if len(payload) == 0 {
		return nil, ErrEmpty
	}
	tag := Tag(payload[0])
	switch tag {
	case TagHeartbeat:
		if len(payload) < heartbeatEchoLen {
			return nil, malformed(tag, len(payload))
		}
		return HeartbeatEcho{EchoedTime: int64(binary.BigEndian.Uint64(payload[2:10]))}, nil
	case TagColor:
		if len(payload) < colorMinLen {
			return nil, malformed(tag, len(payload))
		}
		return SetColor{Color: string(payload[2:])}, nil
	case TagMotion:
		if len(payload) < motionLen {
			return nil, malformed(tag, len(payload))
		}
		return Motion{
			Pressed: payload[2] != 0,
			X:       math.Float32frombits(binary.BigEndian.Uint32(payload[3:7])),
			Y:       math.Float32frombits(binary.BigEndian.Uint32(payload[7:11])),
			Z:       math.Float32frombits(binary.BigEndian.Uint32(payload[11:15])),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTag, tag)
	}
}

func malformed(tag Tag, length int) error {
	return fmt.Errorf("%w: %s payload of %d bytes", ErrMalformed, tag, length)
}

// EncodeHeartbeatEcho renders the client reply to a heartbeat.
func EncodeHeartbeatEcho(echoedTime int64) []byte {
	data := make([]byte, heartbeatEchoLen)
	data[0] = byte(TagHeartbeat)
	binary.BigEndian.PutUint64(data[2:], uint64(echoedTime))
	return data
}

// EncodeColor renders a client color change.
func EncodeColor(color string) []byte {
	data := make([]byte, colorMinLen, colorMinLen+len(color))
	data[0] = byte(TagColor)
	return append(data, color...)
}

// EncodeMotion renders a client pointer update.
func EncodeMotion(m Motion) []byte {
	data := make([]byte, motionLen)
	data[0] = byte(TagMotion)
	if m.Pressed {
		data[2] = 1
	}
	binary.BigEndian.PutUint32(data[3:], math.Float32bits(m.X))
	binary.BigEndian.PutUint32(data[7:], math.Float32bits(m.Y))
	binary.BigEndian.PutUint32(data[11:], math.Float32bits(m.Z))
	return data
}
