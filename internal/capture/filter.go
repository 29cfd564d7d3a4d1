package capture

import (
	"golang.org/x/net/bpf"
)

const (
	etherTypeOff  = 12
	etherTypeLLDP = 0x88cc

	// CDP frames go to 01:00:0c:cc:cc:cc.
	cdpDstHigh = 0x01000ccc
	cdpDstLow  = 0xcccc
)

// discoveryProgram accepts LLDP and CDP frames, truncated to snapLen, and
// drops everything else.
func discoveryProgram(snapLen uint32) []bpf.Instruction {
	return []bpf.Instruction{
		bpf.LoadAbsolute{Off: etherTypeOff, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeLLDP, SkipTrue: 4},
		bpf.LoadAbsolute{Off: 0, Size: 4},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: cdpDstHigh, SkipTrue: 3},
		bpf.LoadAbsolute{Off: 4, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: cdpDstLow, SkipTrue: 1},
		bpf.RetConstant{Val: snapLen}, // accept
		bpf.RetConstant{Val: 0},       // drop
	}
}

// DiscoveryFilter assembles the kernel filter attached to live sources that
// only forward switch discovery traffic.
func DiscoveryFilter(snapLen int) ([]bpf.RawInstruction, error) {
	return bpf.Assemble(discoveryProgram(uint32(snapLen)))
}
