package hexdump

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"procsig/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
)

// Options defines options for customizing the hexdump output
type Options struct {
	// BytesPerLine defines the number of bytes to display per line
	BytesPerLine int

	// GroupSize defines the grouping of bytes (usually 1, 2, 4, or 8)
	GroupSize int

	ShowASCII  bool
	ShowOffset bool

	// StartAddress is the target address of data[0]
	StartAddress process.ProcessMemoryAddress

	// OffsetWidth is the width of the address column in hex digits
	OffsetWidth int

	OffsetColor       coloransi.ColorCode
	HexColor          coloransi.ColorCode
	ASCIIColor        coloransi.ColorCode
	NonPrintableColor coloransi.ColorCode
	ZeroColor         coloransi.ColorCode

	// Highlight marks HighlightLen bytes starting at data[HighlightStart]
	HighlightStart           int
	HighlightLen             int
	HighlightColor           coloransi.ColorCode
	HighlightBackgroundColor coloransi.ColorCode

	// MaxLines is the maximum number of lines to show (0 for no limit)
	MaxLines int

	// Modules, when set, annotates the qwords at the start and middle of
	// each line that point into one of them as module+offset
	Modules []process.ModuleInfo
}

// DefaultOptions returns the default hexdump options
func DefaultOptions() Options {
	return Options{
		BytesPerLine:             16,
		GroupSize:                1,
		ShowASCII:                true,
		ShowOffset:               true,
		OffsetWidth:              12,
		OffsetColor:              coloransi.Cyan,
		HexColor:                 coloransi.Green,
		ASCIIColor:               coloransi.White,
		NonPrintableColor:        coloransi.BrightBlack,
		ZeroColor:                coloransi.BrightBlack,
		HighlightColor:           coloransi.Yellow,
		HighlightBackgroundColor: coloransi.Black,
	}
}

// Dump creates a hex dump of the given data with specified options
func Dump(data []byte, options Options) string {
	var buffer bytes.Buffer
	DumpToWriter(&buffer, data, options)
	return buffer.String()
}

// DumpToWriter writes a hex dump of the given data to the specified writer
func DumpToWriter(writer io.Writer, data []byte, options Options) {
	if options.BytesPerLine <= 0 {
		options.BytesPerLine = 16
	}
	if options.GroupSize <= 0 {
		options.GroupSize = 1
	}
	if options.OffsetWidth <= 0 {
		options.OffsetWidth = 8
	}

	lineCount := 0
	for offset := 0; offset < len(data); offset += options.BytesPerLine {
		if options.MaxLines > 0 && lineCount >= options.MaxLines {
			fmt.Fprintf(writer, "... %d more bytes\n", len(data)-offset)
			break
		}

		end := offset + options.BytesPerLine
		if end > len(data) {
			end = len(data)
		}

		formatLine(writer, data[offset:end], offset, options)
		lineCount++
	}
}

func (o Options) highlighted(pos int) bool {
	return o.HighlightLen > 0 && pos >= o.HighlightStart && pos < o.HighlightStart+o.HighlightLen
}

// formatLine formats one line; lineStart is the index of data[0] in the whole dump
func formatLine(writer io.Writer, data []byte, lineStart int, options Options) {
	if options.ShowOffset {
		addr := uint64(options.StartAddress) + uint64(lineStart)
		offsetStr := fmt.Sprintf("%0"+strconv.Itoa(options.OffsetWidth)+"x", addr)
		fmt.Fprint(writer, coloransi.Foreground(options.OffsetColor, offsetStr), "  ")
	}

	hexParts := formatHexValues(data, lineStart, options)

	if leftGroups, ok := splitAt(len(data), options); ok {
		fmt.Fprint(writer, strings.Join(hexParts[:leftGroups], " "), " | ", strings.Join(hexParts[leftGroups:], " "))
	} else {
		fmt.Fprint(writer, strings.Join(hexParts, " "))
	}

	// pad short lines so the ASCII column stays aligned
	if pad := hexWidth(options.BytesPerLine, options) - hexWidth(len(data), options); pad > 0 {
		fmt.Fprint(writer, strings.Repeat(" ", pad))
	}

	if options.ShowASCII {
		fmt.Fprint(writer, " | ")
		midPoint := options.BytesPerLine / 2
		if options.BytesPerLine >= 8 && len(data) > midPoint {
			formatASCII(writer, data[:midPoint], lineStart, options)
			fmt.Fprint(writer, " ")
			formatASCII(writer, data[midPoint:], lineStart+midPoint, options)
		} else {
			formatASCII(writer, data, lineStart, options)
		}
	}

	if len(options.Modules) > 0 {
		var notes []string
		for _, at := range []int{0, 8} {
			if at+8 > len(data) {
				break
			}
			if s, ok := describePointer(binary.LittleEndian.Uint64(data[at:]), options.Modules); ok {
				notes = append(notes, coloransi.Foreground(coloransi.Yellow, s))
			}
		}
		if len(notes) > 0 {
			fmt.Fprint(writer, " | ", strings.Join(notes, " "))
		}
	}

	fmt.Fprintln(writer)
}

// splitAt returns the number of groups left of the mid-line divider for a
// line of n bytes. The divider only appears once a line reaches past its midpoint.
func splitAt(n int, o Options) (int, bool) {
	if o.BytesPerLine < 8 || n <= o.BytesPerLine/2 {
		return 0, false
	}
	groups := (n + o.GroupSize - 1) / o.GroupSize
	left := min(max(1, o.BytesPerLine/o.GroupSize)/2, groups)
	return left, left > 0 && left < groups
}

// hexWidth is the printed width of the hex column for a line of n bytes
func hexWidth(n int, o Options) int {
	if n == 0 {
		return 0
	}
	groups := (n + o.GroupSize - 1) / o.GroupSize
	w := n*2 + groups - 1
	if _, ok := splitAt(n, o); ok {
		w += 2
	}
	return w
}

func formatASCII(writer io.Writer, data []byte, start int, options Options) {
	for i, b := range data {
		c := rune(b)
		switch {
		case options.highlighted(start + i):
			ch := "."
			if b != 0 && unicode.IsPrint(c) && c < 0x80 {
				ch = string(c)
			}
			fmt.Fprint(writer, coloransi.Color(options.HighlightColor, options.HighlightBackgroundColor, ch))
		case b == 0:
			fmt.Fprint(writer, coloransi.Foreground(options.ZeroColor, "."))
		case c >= 0x80 || !unicode.IsPrint(c):
			fmt.Fprint(writer, coloransi.Foreground(options.NonPrintableColor, "."))
		default:
			fmt.Fprint(writer, coloransi.Foreground(options.ASCIIColor, string(c)))
		}
	}
}

func formatHexValues(data []byte, start int, options Options) []string {
	var result []string
	var group []string

	for i, b := range data {
		hexValue := fmt.Sprintf("%02x", b)

		var colored string
		switch {
		case options.highlighted(start + i):
			colored = coloransi.Color(options.HighlightColor, options.HighlightBackgroundColor, hexValue)
		case b == 0:
			colored = coloransi.Foreground(options.ZeroColor, hexValue)
		default:
			colored = coloransi.Foreground(options.HexColor, hexValue)
		}

		group = append(group, colored)
		if (i+1)%options.GroupSize == 0 || i == len(data)-1 {
			result = append(result, strings.Join(group, ""))
			group = nil
		}
	}

	return result
}

// describePointer renders v as module+offset when it falls inside a module
func describePointer(v uint64, modules []process.ModuleInfo) (string, bool) {
	addr := process.ProcessMemoryAddress(v)
	for _, m := range modules {
		if m.Contains(addr) {
			return fmt.Sprintf("%s+0x%x", m.Name, uint64(addr-m.Base)), true
		}
	}
	return "", false
}

// Window is a slice of target memory around a match
type Window struct {
	Data  []byte
	Start process.ProcessMemoryAddress
}

// Around returns the window of data, which begins at base, that covers
// length bytes at addr plus up to context bytes on either side. The window
// begins on a 16 byte boundary relative to base.
func Around(data []byte, base, addr process.ProcessMemoryAddress, length, context int) Window {
	if addr < base || uint64(addr-base) > uint64(len(data)) {
		return Window{Start: addr}
	}

	off := int(addr - base)
	from := max(0, off-context) &^ 0xF
	to := min(len(data), off+length+context)

	return Window{Data: data[from:to], Start: base + process.ProcessMemoryAddress(from)}
}

// Match dumps the window around a match at addr, highlighting length bytes
func Match(data []byte, base, addr process.ProcessMemoryAddress, length int) string {
	w := Around(data, base, addr, length, 32)

	options := DefaultOptions()
	options.StartAddress = w.Start
	options.HighlightStart = int(addr - w.Start)
	options.HighlightLen = length

	return Dump(w.Data, options)
}

// DumpAt dumps data read from addr with default options
func DumpAt(data []byte, addr process.ProcessMemoryAddress, modules []process.ModuleInfo) string {
	options := DefaultOptions()
	options.StartAddress = addr
	options.Modules = modules
	options.NonPrintableColor = coloransi.Red
	return Dump(data, options)
}

// Plain renders with all colors disabled; used where output is not a terminal
func Plain(data []byte, addr process.ProcessMemoryAddress) string {
	return stripANSI(DumpAt(data, addr, nil))
}

func stripANSI(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == 0x1b && i+1 < len(s) && s[i+1] == '[' {
			j := i + 2
			for j < len(s) && (s[j] < 0x40 || s[j] > 0x7E) {
				j++
			}
			i = j
			continue
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}
