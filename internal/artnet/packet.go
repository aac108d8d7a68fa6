// Package artnet implements the Art-Net (DMX-over-UDP) emitter from spec
// §4.8: per-universe packetisation with configurable channel ordering,
// colour correction, and delta encoding. The packet layout in BuildDMXPacket
// is normative (spec's "Wire format guarantee") and is grounded directly on
// bbernstein-lacylights-go's internal/services/dmx — the only pack example
// that already speaks Art-Net.
package artnet

import "encoding/binary"

const (
	// Port is the standard Art-Net UDP port.
	Port = 6454
	// UniverseSize is the maximum channel count in one Art-Net universe.
	UniverseSize = 512

	opcodeArtDMX   = 0x0050
	protocolVer    = 0x000e
	headerIDLen    = 8
	headerTotalLen = 18
)

var artNetID = [headerIDLen]byte{'A', 'r', 't', '-', 'N', 'e', 't', 0}

// BuildDMXPacket serialises dmx (1..512 bytes) into an ArtDMX packet for the
// given universe and sequence number, per spec §4.8's normative byte layout:
//
//	bytes 0..7  : "Art-Net\0"
//	bytes 8..9  : 0x0050 (ArtDMX opcode, little-endian)
//	bytes 10..11: 0x000e (protocol version, big-endian)
//	byte 12     : sequence (may be 0)
//	byte 13     : physical (0)
//	bytes 14..15: universe (little-endian)
//	bytes 16..17: data length (big-endian)
//	bytes 18..N : DMX data (1..512 bytes)
func BuildDMXPacket(universe int, dmx []byte, sequence byte) []byte {
	if len(dmx) > UniverseSize {
		dmx = dmx[:UniverseSize]
	}
	pkt := make([]byte, headerTotalLen+len(dmx))
	copy(pkt[0:8], artNetID[:])
	binary.LittleEndian.PutUint16(pkt[8:10], opcodeArtDMX)
	binary.BigEndian.PutUint16(pkt[10:12], protocolVer)
	pkt[12] = sequence
	pkt[13] = 0 // physical
	binary.LittleEndian.PutUint16(pkt[14:16], uint16(universe))
	binary.BigEndian.PutUint16(pkt[16:18], uint16(len(dmx)))
	copy(pkt[18:], dmx)
	return pkt
}
