// Package discovery recognises switch discovery traffic (LLDP, CDP) and wraps
// captured frames into FrameSets for the collector.
package discovery

import (
	"bytes"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Protocol is the discovery protocol a captured frame carries.
type Protocol uint8

const (
	Unknown Protocol = iota
	LLDP
	CDP
)

func (p Protocol) String() string {
	switch p {
	case LLDP:
		return "lldp"
	case CDP:
		return "cdp"
	}
	return "other"
}

// IsDiscovery reports whether p is a switch discovery protocol.
func (p Protocol) IsDiscovery() bool {
	return p == LLDP || p == CDP
}

var ciscoOUI = []byte{0x00, 0x00, 0x0c}

var decodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}

// Classify inspects an Ethernet frame. Only the link-layer headers are
// consulted, so a discovery frame with a malformed body still classifies.
func Classify(data []byte) Protocol {
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, decodeOptions)

	eth, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	if !ok {
		return Unknown
	}
	if eth.EthernetType == layers.EthernetTypeLinkLayerDiscovery {
		return LLDP
	}
	if snap, ok := pkt.Layer(layers.LayerTypeSNAP).(*layers.SNAP); ok {
		if bytes.Equal(snap.OrganizationalCode, ciscoOUI) && snap.Type == layers.EthernetTypeCiscoDiscovery {
			return CDP
		}
	}
	return Unknown
}

// Neighbor summarises what a discovery frame says about the sending switch.
type Neighbor struct {
	Protocol   Protocol
	ChassisID  string
	PortID     string
	SystemName string
}

// Describe decodes the discovery payload. It returns false for frames that
// are not discovery traffic or whose body does not decode.
func Describe(data []byte) (Neighbor, bool) {
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, decodeOptions)

	if lldp, ok := pkt.Layer(layers.LayerTypeLinkLayerDiscovery).(*layers.LinkLayerDiscovery); ok {
		n := Neighbor{
			Protocol:  LLDP,
			ChassisID: macOrText(lldp.ChassisID.Subtype == layers.LLDPChassisIDSubTypeMACAddr, lldp.ChassisID.ID),
			PortID:    macOrText(lldp.PortID.Subtype == layers.LLDPPortIDSubtypeMACAddr, lldp.PortID.ID),
		}
		if info, ok := pkt.Layer(layers.LayerTypeLinkLayerDiscoveryInfo).(*layers.LinkLayerDiscoveryInfo); ok {
			n.SystemName = info.SysName
		}
		return n, true
	}

	if cdp, ok := pkt.Layer(layers.LayerTypeCiscoDiscoveryInfo).(*layers.CiscoDiscoveryInfo); ok {
		return Neighbor{
			Protocol:   CDP,
			ChassisID:  cdp.DeviceID,
			PortID:     cdp.PortID,
			SystemName: cdp.DeviceID,
		}, true
	}
	return Neighbor{}, false
}

func macOrText(isMAC bool, id []byte) string {
	if isMAC && len(id) == 6 {
		return net.HardwareAddr(id).String()
	}
	return string(id)
}
