package frameset

import "fmt"

// FrameSet type tags.
const (
	TypeHeartbeat  uint16 = 1
	TypeSwDiscover uint16 = 16
	TypeCapture    uint16 = 0xfeed
)

var typeNames = map[uint16]string{
	TypeHeartbeat:  "HEARTBEAT",
	TypeSwDiscover: "SWDISCOVER",
	TypeCapture:    "CAPTURE",
}

func TypeName(fstype uint16) string {
	if name, ok := typeNames[fstype]; ok {
		return name
	}
	return fmt.Sprintf("fstype(0x%04x)", fstype)
}
