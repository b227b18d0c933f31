package proto

import (
	"encoding/binary"
	"math"
)

// ColorWidth is the fixed number of color bytes per user record.
const ColorWidth = 6

const (
	userRecordLen = 1 + ColorWidth + 4 + 2
	heartbeatLen  = 1 + 1 + 8
	contactLen    = 1 + 1 + 4
)

// UserRecord is one entry of the user-list broadcast.
type UserRecord struct {
	// Pointer is the token id, or the pool size for observers.
	Pointer uint8
	Color   string
	Address uint32
	Latency uint16
}

// EncodeUsers renders the user-list broadcast. Colors are truncated or
// zero-padded to ColorWidth bytes.
func EncodeUsers(records []UserRecord) []byte {
	data := make([]byte, 1+userRecordLen*len(records))
	data[0] = byte(TagUsers)
	offset := 1
	for _, rec := range records {
		data[offset] = rec.Pointer
		copy(data[offset+1:offset+1+ColorWidth], rec.Color)
		binary.BigEndian.PutUint32(data[offset+7:], rec.Address)
		binary.BigEndian.PutUint16(data[offset+11:], rec.Latency)
		offset += userRecordLen
	}
	return data
}

// DecodeUsers parses a user-list broadcast. Trailing zero bytes of the color
// field are dropped.
func DecodeUsers(payload []byte) ([]UserRecord, error) {
	if len(payload) == 0 || Tag(payload[0]) != TagUsers || (len(payload)-1)%userRecordLen != 0 {
		return nil, malformed(TagUsers, len(payload))
	}
	count := (len(payload) - 1) / userRecordLen
	records := make([]UserRecord, 0, count)
	for offset := 1; offset < len(payload); offset += userRecordLen {
		color := payload[offset+1 : offset+1+ColorWidth]
		end := len(color)
		for end > 0 && color[end-1] == 0 {
			end--
		}
		records = append(records, UserRecord{
			Pointer: payload[offset],
			Color:   string(color[:end]),
			Address: binary.BigEndian.Uint32(payload[offset+7:]),
			Latency: binary.BigEndian.Uint16(payload[offset+11:]),
		})
	}
	return records, nil
}

// Heartbeat is the server liveness probe.
type Heartbeat struct {
	Pointer    uint8
	ServerTime int64
}

// EncodeHeartbeat renders a heartbeat carrying the recipient's pointer id and
// the server time in unix milliseconds.
func EncodeHeartbeat(hb Heartbeat) []byte {
	data := make([]byte, heartbeatLen)
	data[0] = byte(TagHeartbeat)
	data[1] = hb.Pointer
	binary.BigEndian.PutUint64(data[2:], uint64(hb.ServerTime))
	return data
}

// DecodeHeartbeat parses a server heartbeat.
func DecodeHeartbeat(payload []byte) (Heartbeat, error) {
	if len(payload) < heartbeatLen || Tag(payload[0]) != TagHeartbeat {
		return Heartbeat{}, malformed(TagHeartbeat, len(payload))
	}
	return Heartbeat{
		Pointer:    payload[1],
		ServerTime: int64(binary.BigEndian.Uint64(payload[2:])),
	}, nil
}

// Contact reports a ball hitting something hard enough to be heard.
type Contact struct {
	Ball  uint8
	Force float32
}

// EncodeContact renders a contact event.
func EncodeContact(c Contact) []byte {
	data := make([]byte, contactLen)
	data[0] = byte(TagContact)
	data[1] = c.Ball
	binary.BigEndian.PutUint32(data[2:], math.Float32bits(c.Force))
	return data
}

// DecodeContact parses a contact event.
func DecodeContact(payload []byte) (Contact, error) {
	if len(payload) < contactLen || Tag(payload[0]) != TagContact {
		return Contact{}, malformed(TagContact, len(payload))
	}
	return Contact{
		Ball:  payload[1],
		Force: math.Float32frombits(binary.BigEndian.Uint32(payload[2:])),
	}, nil
}

// PointerByte maps a pointer token to its wire value; observers (token < 0)
// encode as the pool size.
func PointerByte(token, poolSize int) uint8 {
	if token < 0 || token >= poolSize {
		return uint8(poolSize)
	}
	return uint8(token)
}
