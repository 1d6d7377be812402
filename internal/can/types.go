package can

// SocketCAN flag bits for can_id (same values as <linux/can.h>)
const (
	EFFFlag = 0x80000000
	RTRFlag = 0x40000000
	ErrFlag = 0x20000000
	SFFMask = 0x7FF
	EFFMask = 0x1FFFFFFF
)

// Frame is a classic CAN frame. ID holds the arbitration id with optional
// EFF/RTR/ERR flags in its upper bits like SocketCAN; Len is the payload
// length (0..8) and only the first Len bytes of Data are valid.
type Frame struct {
	ID   uint32
	Len  uint8
	Data [8]byte
}

// ArbitrationID returns the identifier with flag bits stripped.
func (f Frame) ArbitrationID() uint32 {
	if f.ID&EFFFlag != 0 {
		return f.ID & EFFMask
	}
	return f.ID & SFFMask
}

// Payload returns the valid slice of the frame data.
func (f Frame) Payload() []byte { return f.Data[:f.Len] }

// New builds a standard-id data frame; payloads longer than 8 bytes are truncated.
func New(id uint32, payload []byte) Frame {
	var f Frame
	f.ID = id & SFFMask
	if len(payload) > 8 {
		payload = payload[:8]
	}
	f.Len = uint8(len(payload))
	copy(f.Data[:], payload)
	return f
}

// IDRange is a contiguous arbitration-id window, inclusive on both ends.
type IDRange struct {
	First uint32
	Last  uint32
}

// Contains reports whether id falls inside the window.
func (r IDRange) Contains(id uint32) bool { return id >= r.First && id <= r.Last }

// Width returns the number of ids in the window.
func (r IDRange) Width() int {
	if r.Last < r.First {
		return 0
	}
	return int(r.Last-r.First) + 1
}
