package proto

import (
	"bytes"
	"testing"
)

func TestEncodeFrameIsLittleEndian(t *testing.T) {
	data := EncodeFrame([]float32{1, 0, 0, 0, 0, 0, 1, 0})
	if len(data) != FrameSize(1) {
		t.Fatalf("expected %d bytes, got %d", FrameSize(1), len(data))
	}
	if data[0] != byte(TagFrame) {
		t.Fatalf("expected frame tag, got %d", data[0])
	}
	if want := []byte{0x00, 0x00, 0x80, 0x3f}; !bytes.Equal(data[1:5], want) {
		t.Fatalf("expected % x, got % x", want, data[1:5])
	}
}

func TestEncodeFrameDeterministic(t *testing.T) {
	transforms := make([]float32, 3*FloatsPerBody)
	for i := range transforms {
		transforms[i] = float32(i) * 0.25
	}
	first := EncodeFrame(transforms)
	second := EncodeFrame(transforms)
	if !bytes.Equal(first, second) {
		t.Fatalf("expected identical frames for identical transforms")
	}

	decoded, err := DecodeFrame(first)
	if err != nil {
		t.Fatalf("expected frame to decode, got %v", err)
	}
	for i := range transforms {
		if decoded[i] != transforms[i] {
			t.Fatalf("float %d: expected %v, got %v", i, transforms[i], decoded[i])
		}
	}
}

func TestSetBodyState(t *testing.T) {
	frame := EncodeFrame(make([]float32, 2*FloatsPerBody))
	if !SetBodyState(frame, 1, InteractionPressed) {
		t.Fatalf("expected block 1 to be writable")
	}
	if SetBodyState(frame, 2, InteractionHover) {
		t.Fatalf("expected out-of-range block to be rejected")
	}
	if SetBodyState(frame, -1, InteractionHover) {
		t.Fatalf("expected negative block to be rejected")
	}

	floats, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("expected frame to decode, got %v", err)
	}
	if got := floats[FloatsPerBody+StateSlot]; got != InteractionPressed {
		t.Fatalf("expected pressed code in block 1 state slot, got %v", got)
	}
	for i, v := range floats {
		if i != FloatsPerBody+StateSlot && v != 0 {
			t.Fatalf("expected float %d untouched, got %v", i, v)
		}
	}
}
