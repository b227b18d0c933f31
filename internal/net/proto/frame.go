package proto

import (
	"encoding/binary"
	"math"
)

const (
	// FloatsPerBody is the per-body block: position xyz, quaternion xyzw and
	// one state slot.
	FloatsPerBody = 8
	// BodyStride is the byte size of one body block.
	BodyStride = FloatsPerBody * 4
	// StateSlot is the float index within a block that carries sleep state,
	// or the interaction code for pointer target bodies.
	StateSlot = 7
)

// Interaction codes overlaid into a target body's state slot.
const (
	InteractionInactive float32 = 0
	InteractionHover    float32 = 1
	InteractionPressed  float32 = 2
)

// FrameSize returns the encoded length of a frame with bodies blocks.
func FrameSize(bodies int) int {
	return 1 + bodies*BodyStride
}

// EncodeFrame renders the tag byte followed by every transform float in
// little-endian order. len(transforms) must be a multiple of FloatsPerBody.
func EncodeFrame(transforms []float32) []byte {
	data := make([]byte, 1+4*len(transforms))
	data[0] = byte(TagFrame)
	for i, v := range transforms {
		binary.LittleEndian.PutUint32(data[1+4*i:], math.Float32bits(v))
	}
	return data
}

// SetBodyState overwrites the state slot of body block index in an encoded
// frame. It reports false when the block is out of range.
func SetBodyState(frame []byte, block int, value float32) bool {
	offset := 1 + block*BodyStride + StateSlot*4
	if block < 0 || offset+4 > len(frame) {
		return false
	}
	binary.LittleEndian.PutUint32(frame[offset:], math.Float32bits(value))
	return true
}

// DecodeFrame returns the transform floats of an encoded frame.
func DecodeFrame(payload []byte) ([]float32, error) {
	if len(payload) == 0 || Tag(payload[0]) != TagFrame || (len(payload)-1)%BodyStride != 0 {
		return nil, malformed(TagFrame, len(payload))
	}
	floats := make([]float32, (len(payload)-1)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[1+4*i:]))
	}
	return floats, nil
}
