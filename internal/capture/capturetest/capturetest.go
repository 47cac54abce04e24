// Package capturetest builds pcap files for tests.
package capturetest

import (
	"bytes"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

var (
	srcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	dstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	srcIP  = net.IPv4(192, 168, 1, 64)
	dstIP  = net.IPv4(192, 168, 1, 10)
)

// Builder accumulates Ethernet frames and writes them as a pcap stream
type Builder struct {
	frames [][]byte
	start  time.Time
}

// NewBuilder creates an empty capture
func NewBuilder() *Builder {
	return &Builder{start: time.Unix(1700000000, 0)}
}

// UDP appends an Ethernet/IPv4/UDP frame carrying payload to dstPort
func (b *Builder) UDP(dstPort uint16, payload []byte) *Builder {
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP, SrcIP: srcIP, DstIP: dstIP}
	udp := &layers.UDP{SrcPort: 50000, DstPort: layers.UDPPort(dstPort)}
	_ = udp.SetNetworkLayerForChecksum(ip)

	return b.serialize(eth, ip, udp, gopacket.Payload(payload))
}

// TCP appends an Ethernet/IPv4/TCP frame, which replay must skip
func (b *Builder) TCP(payload []byte) *Builder {
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: srcIP, DstIP: dstIP}
	tcp := &layers.TCP{SrcPort: 50000, DstPort: 64, Seq: 1, ACK: true, Window: 1024}
	_ = tcp.SetNetworkLayerForChecksum(ip)

	return b.serialize(eth, ip, tcp, gopacket.Payload(payload))
}

// ARP appends a non-IP frame, which replay must skip
func (b *Builder) ARP() *Builder {
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: layers.EthernetBroadcast, EthernetType: layers.EthernetTypeARP}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   srcMAC,
		SourceProtAddress: srcIP.To4(),
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    dstIP.To4(),
	}
	return b.serialize(eth, arp)
}

func (b *Builder) serialize(ls ...gopacket.SerializableLayer) *Builder {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		panic(err)
	}
	b.frames = append(b.frames, append([]byte(nil), buf.Bytes()...))
	return b
}

// Bytes encodes the capture as a pcap file
func (b *Builder) Bytes() []byte {
	var out bytes.Buffer
	w := pcapgo.NewWriter(&out)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		panic(err)
	}
	for i, f := range b.frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     b.start.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(f),
			Length:        len(f),
		}
		if err := w.WritePacket(ci, f); err != nil {
			panic(err)
		}
	}
	return out.Bytes()
}
