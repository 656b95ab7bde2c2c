package engine

import (
	"strings"
	"unicode/utf8"
)

// chunkDecoder turns raw PTY reads into UTF-8 text. Terminal output is not
// guaranteed valid UTF-8, so invalid sequences are replaced rather than
// surfaced as errors. A multi-byte rune split across two reads is carried
// over to the next chunk instead of being mangled.
//
// Treating the stream as text is intentionally lossy for binary-producing
// scripts; the engine targets terminal output.
type chunkDecoder struct {
	carry []byte
}

// decode consumes one raw chunk and returns the decoded text. The result may
// be empty when the chunk holds only the prefix of a multi-byte rune.
func (d *chunkDecoder) decode(b []byte) string {
	data := b
	if len(d.carry) > 0 {
		data = append(d.carry, b...)
		d.carry = nil
	}

	cut := completePrefixLen(data)
	if cut < len(data) {
		d.carry = append([]byte(nil), data[cut:]...)
		data = data[:cut]
	}
	if len(data) == 0 {
		return ""
	}
	return replaceInvalid(data)
}

// flush returns any pending partial bytes as text. Called at end-of-stream;
// an incomplete trailing sequence decodes to the replacement character.
func (d *chunkDecoder) flush() string {
	if len(d.carry) == 0 {
		return ""
	}
	out := replaceInvalid(d.carry)
	d.carry = nil
	return out
}

func replaceInvalid(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}

// completePrefixLen returns the length of the longest prefix of b that does
// not end in the partial encoding of a multi-byte rune.
func completePrefixLen(b []byte) int {
	end := len(b)
	lo := end - utf8.UTFMax + 1
	if lo < 0 {
		lo = 0
	}
	for i := end - 1; i >= lo; i-- {
		c := b[i]
		if c < utf8.RuneSelf {
			return end
		}
		if c >= 0xC0 {
			// Start byte of a multi-byte sequence.
			need := seqLen(c)
			if need > 0 && end-i < need {
				return i
			}
			return end
		}
		// Continuation byte, keep scanning back.
	}
	return end
}

// seqLen returns the encoded length implied by a UTF-8 start byte, or -1 for
// bytes that cannot start a sequence.
func seqLen(c byte) int {
	switch {
	case c&0xE0 == 0xC0:
		return 2
	case c&0xF0 == 0xE0:
		return 3
	case c&0xF8 == 0xF0:
		return 4
	default:
		return -1
	}
}
