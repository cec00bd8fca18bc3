package chunk

import (
	"bytes"
	"testing"
)

func TestStorageEncodeDecodeDirect(t *testing.T) {
	s := newPalettedStorage(0)
	for i := uint32(0); i < 1000; i++ {
		s.Set(i%cellCount, i*7)
	}
	if s.Palette() != nil {
		t.Fatal("storage should be direct encoded")
	}
	buf := bytes.NewBuffer(nil)
	encodeStorage(s, buf)

	decoded, err := decodeStorage(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Palette() != nil {
		t.Fatal("decoded storage should be direct encoded")
	}
	if !s.Equal(decoded) {
		t.Fatal("storages differ after direct round trip")
	}
}

func TestStorageDecodeBadHeader(t *testing.T) {
	// Width 7 is never produced by this package and must be rejected.
	buf := bytes.NewBuffer([]byte{7<<1 | 1})
	if _, err := decodeStorage(buf); err == nil {
		t.Fatal("expected an unsupported index width to be rejected")
	}
}

func TestStorageDecodeBadPalette(t *testing.T) {
	build := func(entries []uint64) *bytes.Buffer {
		buf := bytes.NewBuffer(nil)
		buf.WriteByte(1<<1 | 1)
		buf.Write(make([]byte, wordsFor(1)*4))
		writeUvarint(buf, uint64(len(entries)))
		for _, e := range entries {
			writeUvarint(buf, e)
		}
		return buf
	}
	if _, err := decodeStorage(build([]uint64{1 << 33, 0})); err == nil {
		t.Fatal("palette entry overflowing uint32 accepted")
	}
	if _, err := decodeStorage(build([]uint64{5, 5})); err == nil {
		t.Fatal("duplicate palette entry accepted")
	}
}
