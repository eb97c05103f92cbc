package process

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseAOB compiles signature text such as "48 8B ? ? 00" into an AOB.
//
// Whitespace and commas are optional between tokens. A "?" is a wildcard byte and "??"
// written together counts as one. Every other token is two characters read as
// hex; a pair that does not parse becomes a wildcard. A lone trailing
// character is dropped.
//
// Scanners that emit one wildcard per "?" character read "E8 ?? 90" as four
// bytes. Here it is three, as in IDA style signatures; write "E8 ? ? 90" for
// two wildcard bytes.
func ParseAOB(text string) AOB {
	var aob AOB

	for i := 0; i < len(text); {
		c := text[i]

		if isSpace(c) {
			i++
			continue
		}

		if c == '?' {
			i++
			if i < len(text) && text[i] == '?' {
				i++
			}
			aob.Pattern = append(aob.Pattern, 0)
			aob.Mask = append(aob.Mask, 0)
			continue
		}

		if i+1 >= len(text) {
			break
		}

		if v, err := strconv.ParseUint(text[i:i+2], 16, 8); err == nil {
			aob.Pattern = append(aob.Pattern, byte(v))
			aob.Mask = append(aob.Mask, 0xFF)
		} else {
			aob.Pattern = append(aob.Pattern, 0)
			aob.Mask = append(aob.Mask, 0)
		}
		i += 2
	}

	return aob
}

// String renders the pattern in the form ParseAOB accepts
func (aob AOB) String() string {
	var sb strings.Builder
	for i := range aob.Pattern {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if aob.IsWildcard(i) {
			sb.WriteByte('?')
			continue
		}
		fmt.Fprintf(&sb, "%02X", aob.Pattern[i])
	}
	return sb.String()
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', ',':
		return true
	}
	return false
}
