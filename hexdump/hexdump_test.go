package hexdump

import (
	"strings"
	"testing"

	"procsig/process"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlain(t *testing.T) {
	data := []byte("ABCDEFGHIJKLMNOP\x00\x01q")
	out := Plain(data, 0x1000)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "000000001000  41 42 43 44 45 46 47 48 | 49 4a 4b 4c 4d 4e 4f 50 | ABCDEFGH IJKLMNOP", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "000000001010  00 01 71"))
	assert.True(t, strings.HasSuffix(lines[1], " | ..q"))

	// the ASCII column starts at the same place on short lines
	assert.Equal(t, " | ", lines[0][63:66])
	assert.Equal(t, " | ", lines[1][63:66])
	assert.Len(t, lines[1], 69)
}

func TestPlainGrouped(t *testing.T) {
	options := DefaultOptions()
	options.GroupSize = 4
	options.OffsetWidth = 4

	out := stripANSI(Dump([]byte("0123456789:;<=>?XYZ"), options))
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "0000  30313233 34353637 | 38393a3b 3c3d3e3f | 01234567 89:;<=>?", lines[0])
	assert.Equal(t, strings.Index(lines[0], " | 0123"), strings.Index(lines[1], " | XYZ"))
}

func TestAround(t *testing.T) {
	data := make([]byte, 0x100)
	base := process.ProcessMemoryAddress(0x5000)

	w := Around(data, base, base+0x48, 4, 16)
	assert.Equal(t, base+0x30, w.Start)
	assert.Len(t, w.Data, 0x48+4+16-0x30)

	w = Around(data, base, base+2, 4, 16)
	assert.Equal(t, base, w.Start)
	assert.Len(t, w.Data, 2+4+16)

	w = Around(data, base, base+0xFE, 4, 16)
	assert.Equal(t, 0x100-0xE0, len(w.Data))

	w = Around(data, base, 0x10, 4, 16)
	assert.Empty(t, w.Data)
}

func TestMatchHighlights(t *testing.T) {
	data := make([]byte, 0x40)
	copy(data[0x20:], []byte{0x48, 0x8B, 0x05})

	out := Match(data, 0x7000, 0x7020, 3)
	hl := "\033[33m\033[40m"
	assert.Equal(t, 3*2, strings.Count(out, hl), "hex and ascii columns highlight each byte")
	assert.Contains(t, stripANSI(out), "48 8b 05")
}

func TestDescribePointer(t *testing.T) {
	modules := []process.ModuleInfo{{Name: "client.dll", Base: 0x140000000, Size: 0x1000}}

	s, ok := describePointer(0x140000010, modules)
	require.True(t, ok)
	assert.Equal(t, "client.dll+0x10", s)

	_, ok = describePointer(0x140001000, modules)
	assert.False(t, ok)
}
