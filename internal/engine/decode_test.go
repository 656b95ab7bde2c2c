package engine

import "testing"

func TestDecodePlainASCII(t *testing.T) {
	var d chunkDecoder
	if got := d.decode([]byte("hello\r\n")); got != "hello\r\n" {
		t.Errorf("decode = %q, want %q", got, "hello\r\n")
	}
	if rest := d.flush(); rest != "" {
		t.Errorf("flush = %q, want empty", rest)
	}
}

func TestDecodeRuneSplitAcrossChunks(t *testing.T) {
	var d chunkDecoder
	// "héllo" with the é (0xC3 0xA9) split between two reads.
	first := d.decode([]byte{'h', 0xC3})
	second := d.decode([]byte{0xA9, 'l', 'l', 'o'})

	if first+second != "héllo" {
		t.Errorf("decoded %q + %q, want %q", first, second, "héllo")
	}
}

func TestDecodeFourByteRuneSplit(t *testing.T) {
	var d chunkDecoder
	// U+1F600 (😀) is F0 9F 98 80; split after three bytes.
	first := d.decode([]byte{0xF0, 0x9F, 0x98})
	second := d.decode([]byte{0x80})

	if first != "" {
		t.Errorf("first chunk = %q, want empty (all bytes carried)", first)
	}
	if second != "😀" {
		t.Errorf("second chunk = %q, want the emoji", second)
	}
}

func TestDecodeInvalidBytesReplaced(t *testing.T) {
	var d chunkDecoder
	got := d.decode([]byte{'a', 0xFF, 'b'})
	if got != "a�b" {
		t.Errorf("decode = %q, want %q", got, "a�b")
	}
}

func TestFlushIncompleteSequence(t *testing.T) {
	var d chunkDecoder
	if got := d.decode([]byte{'x', 0xC3}); got != "x" {
		t.Errorf("decode = %q, want %q", got, "x")
	}
	// Stream ends mid-rune: the dangling byte decodes to the replacement char.
	if rest := d.flush(); rest != "�" {
		t.Errorf("flush = %q, want replacement character", rest)
	}
}

func TestDecodeEmptyChunk(t *testing.T) {
	var d chunkDecoder
	if got := d.decode(nil); got != "" {
		t.Errorf("decode(nil) = %q, want empty", got)
	}
}
