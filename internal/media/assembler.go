package media

// FrameAssembler slices an arbitrary stream of PCM bytes into fixed 20ms
// frames. The AI service delivers audio deltas of varying size; the telephony
// leg wants exact frame-duration payloads.
//
// Not safe for concurrent use; each bridge direction owns its own assembler.
type FrameAssembler struct {
	buf       []byte
	frameSize int
}

// NewFrameAssembler creates an assembler producing CodecPCM-sized frames.
func NewFrameAssembler() *FrameAssembler {
	return &FrameAssembler{frameSize: CodecPCM.BytesPerFrame()}
}

// Push appends PCM bytes to the pending buffer.
func (a *FrameAssembler) Push(pcm []byte) {
	a.buf = append(a.buf, pcm...)
}

// Next pops one complete frame, or returns false if fewer than a full
// frame's worth of bytes is pending.
func (a *FrameAssembler) Next() ([]byte, bool) {
	if len(a.buf) < a.frameSize {
		return nil, false
	}
	frame := make([]byte, a.frameSize)
	copy(frame, a.buf[:a.frameSize])
	a.buf = a.buf[a.frameSize:]
	return frame, true
}

// Pending returns the number of buffered bytes not yet forming a full frame.
func (a *FrameAssembler) Pending() int {
	return len(a.buf)
}

// Reset discards any buffered bytes.
func (a *FrameAssembler) Reset() {
	a.buf = a.buf[:0]
}
