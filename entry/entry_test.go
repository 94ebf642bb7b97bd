package entry

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		typ   Type
		key   []byte
		value []byte
		time  uint64
	}{
		{"put with value", Put, []byte("k1"), []byte("v1"), 1700000000},
		{"delete has no value", Delete, []byte("k2"), nil, 1700000001},
		{"empty value put", Put, []byte("k3"), []byte{}, 42},
		{"long key and value", Put, bytes.Repeat([]byte("a"), 200), bytes.Repeat([]byte("b"), 200), 99},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			in := New(c.typ, c.key, c.value, c.time)
			buf := Encode(in)

			if got := len(buf); got != in.Len() {
				t.Fatalf("encoded length = %d, want %d", got, in.Len())
			}

			out, ok := Decode(buf, 0)
			if !ok {
				t.Fatalf("Decode failed on well-formed entry")
			}
			if out.Type != c.typ {
				t.Errorf("type = %v, want %v", out.Type, c.typ)
			}
			if out.Time != c.time {
				t.Errorf("time = %d, want %d", out.Time, c.time)
			}
			if !bytes.Equal(out.Key, c.key) {
				t.Errorf("key = %q, want %q", out.Key, c.key)
			}
			if !bytes.Equal(out.Value, c.value) && len(c.value) != 0 {
				t.Errorf("value = %q, want %q", out.Value, c.value)
			}
		})
	}
}

func TestDecodeZeroSentinel(t *testing.T) {
	buf := make([]byte, 64)
	_, ok := Decode(buf, 0)
	if ok {
		t.Fatalf("Decode of all-zero metadata should report not-an-entry")
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	buf := make([]byte, MetadataLen-1)
	_, ok := Decode(buf, 0)
	if ok {
		t.Fatalf("Decode with fewer than MetadataLen bytes should fail")
	}
}

func TestDecodeOverflowsBuffer(t *testing.T) {
	e := New(Put, []byte("key"), []byte("value-too-long-for-buffer"), 123)
	buf := Encode(e)
	truncated := buf[:len(buf)-1]
	if _, ok := Decode(truncated, 0); ok {
		t.Fatalf("Decode should fail when key+value would exceed the buffer")
	}
}

func TestDecodeAtNonZeroOffset(t *testing.T) {
	a := Encode(New(Put, []byte("a"), []byte("1"), 10))
	b := Encode(New(Put, []byte("bb"), []byte("22"), 20))
	buf := append(append([]byte{}, a...), b...)

	got, ok := Decode(buf, len(a))
	if !ok {
		t.Fatalf("Decode at offset %d failed", len(a))
	}
	if string(got.Key) != "bb" {
		t.Errorf("key = %q, want %q", got.Key, "bb")
	}
}
