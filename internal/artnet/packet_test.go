package artnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDMXPacketHeaderLayout(t *testing.T) {
	dmx := []byte{1, 2, 3, 4, 5}
	pkt := BuildDMXPacket(3, dmx, 7)

	require.Len(t, pkt, headerTotalLen+len(dmx))
	assert.Equal(t, "Art-Net\x00", string(pkt[0:8]))
	assert.Equal(t, byte(0x50), pkt[8])
	assert.Equal(t, byte(0x00), pkt[9])
	assert.Equal(t, byte(0x00), pkt[10])
	assert.Equal(t, byte(0x0e), pkt[11])
	assert.Equal(t, byte(7), pkt[12])
	assert.Equal(t, byte(0), pkt[13])
	assert.Equal(t, byte(3), pkt[14])
	assert.Equal(t, byte(0), pkt[15])
	assert.Equal(t, byte(0), pkt[16])
	assert.Equal(t, byte(5), pkt[17])
	assert.Equal(t, dmx, pkt[18:])
}

func TestBuildDMXPacketTruncatesOversizeUniverse(t *testing.T) {
	dmx := make([]byte, UniverseSize+10)
	pkt := BuildDMXPacket(0, dmx, 0)
	assert.Len(t, pkt, headerTotalLen+UniverseSize)
}
