package media

import "testing"

func TestFrameAssembler(t *testing.T) {
	a := NewFrameAssembler()
	frameSize := CodecPCM.BytesPerFrame()

	if _, ok := a.Next(); ok {
		t.Fatal("Next() on empty assembler returned a frame")
	}

	// Push half a frame - nothing to pop yet.
	a.Push(make([]byte, frameSize/2))
	if _, ok := a.Next(); ok {
		t.Fatal("Next() returned a frame with only half a frame buffered")
	}
	if got := a.Pending(); got != frameSize/2 {
		t.Errorf("Pending() = %d, want %d", got, frameSize/2)
	}

	// Push a full frame on top - exactly one frame available, half pending.
	a.Push(make([]byte, frameSize))
	if _, ok := a.Next(); !ok {
		t.Fatal("Next() returned no frame with 1.5 frames buffered")
	}
	if _, ok := a.Next(); ok {
		t.Fatal("Next() returned a second frame with only half a frame left")
	}
	if got := a.Pending(); got != frameSize/2 {
		t.Errorf("Pending() after pop = %d, want %d", got, frameSize/2)
	}

	a.Reset()
	if got := a.Pending(); got != 0 {
		t.Errorf("Pending() after Reset() = %d, want 0", got)
	}
}

func TestFrameAssemblerPreservesOrder(t *testing.T) {
	a := NewFrameAssembler()
	frameSize := CodecPCM.BytesPerFrame()

	// Two frames pushed as three uneven chunks; byte i of the stream
	// must come out as byte i.
	stream := make([]byte, frameSize*2)
	for i := range stream {
		stream[i] = byte(i % 251)
	}
	a.Push(stream[:100])
	a.Push(stream[100 : frameSize+7])
	a.Push(stream[frameSize+7:])

	for f := 0; f < 2; f++ {
		frame, ok := a.Next()
		if !ok {
			t.Fatalf("Next() frame %d missing", f)
		}
		for i := range frame {
			if frame[i] != stream[f*frameSize+i] {
				t.Fatalf("frame %d byte %d = %d, want %d", f, i, frame[i], stream[f*frameSize+i])
			}
		}
	}
}
