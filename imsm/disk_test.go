package imsm

import (
	"testing"
	"time"
)

type fakeSGDevice struct {
	resp []byte
	err  error
}

func (f *fakeSGDevice) InquiryPage80(timeout time.Duration) ([]byte, error) {
	return f.resp, f.err
}

func TestReadSerialExtractsPage80(t *testing.T) {
	resp := make([]byte, 20)
	resp[3] = 10 // page length
	copy(resp[4:], "ABC 123XYZ")

	got, err := ReadSerial(&fakeSGDevice{resp: resp})
	if err != nil {
		t.Fatalf("ReadSerial: %v", err)
	}

	want := canonicalSerial("ABC 123XYZ")
	if got != want {
		t.Errorf("ReadSerial = %q, want %q", got, want)
	}
}

func TestCanonicalSerialStripsWhitespaceAndPads(t *testing.T) {
	got := canonicalSerial(" AB C ")
	want := [16]byte{'A', 'B', 'C'}
	if got != want {
		t.Errorf("canonicalSerial = %v, want %v", got, want)
	}
}

func TestCanonicalSerialTruncatesLongInput(t *testing.T) {
	got := canonicalSerial("012345678901234567890")
	if len(got) != 16 {
		t.Fatalf("canonicalSerial result length = %d, want 16", len(got))
	}
	if got[15] != '5' {
		t.Errorf("canonicalSerial did not truncate at 16 bytes: got %v", got)
	}
}

func TestReadSerialShortResponse(t *testing.T) {
	if _, err := ReadSerial(&fakeSGDevice{resp: []byte{1, 2}}); err == nil {
		t.Fatal("expected error for response shorter than header")
	}
}
