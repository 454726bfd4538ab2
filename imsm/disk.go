package imsm

import (
	"bytes"
	"time"

	"github.com/pkg/errors"
)

// sgInquiryTimeout is the INQUIRY timeout mandated by §5: 5 seconds. Defined here
// rather than in sgio.go so callers that stub out the ioctl for tests can
// still see the contract.
const sgInquiryTimeout = 5 * time.Second

// inquiryPage80 issues the collaborator ioctl and returns the raw response
// buffer. Implemented in sgio.go against golang.org/x/sys/unix; split out
// so this file stays free of syscall concerns, mirroring how
// trustelem-go-diskfs keeps util.File syscalls out of the filesystem
// packages that consume them.
type sgIoctl interface {
	InquiryPage80(timeout time.Duration) ([]byte, error)
}

// ReadSerial issues a SCSI INQUIRY with EVPD=1, page 0x80 against dev and
// returns the canonical 16-byte serial (§4.2). Byte 3 of the response
// holds the page length; bytes [4, 4+len) hold the vendor serial, which is
// then canonicalised by canonicalSerial.
func ReadSerial(dev sgIoctl) ([16]byte, error) {
	resp, err := dev.InquiryPage80(sgInquiryTimeout)
	if err != nil {
		return [16]byte{}, errors.Wrap(err, "inquiry page 0x80")
	}
	if len(resp) < 4 {
		return [16]byte{}, errors.New("inquiry page 0x80: response shorter than header")
	}
	pageLen := int(resp[3])
	end := 4 + pageLen
	if end > len(resp) {
		end = len(resp)
	}
	return canonicalSerial(string(resp[4:end])), nil
}

// canonicalSerial drops all whitespace from s and truncates or NUL-pads it
// to MaxRaidSerialLen bytes (§4.2).
func canonicalSerial(s string) [16]byte {
	var out [16]byte
	n := 0
	for i := 0; i < len(s) && n < MaxRaidSerialLen; i++ {
		c := s[i]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f' {
			continue
		}
		out[n] = c
		n++
	}
	return out
}

// serialsEqual compares two canonical serials over the full 16-byte
// buffer, bytes after a NUL included, the way load_imsm_disk compares
// disk->serial against dl->serial with memcmp over MAX_RAID_SERIAL_LEN.
func serialsEqual(a, b [16]byte) bool {
	return bytes.Equal(a[:], b[:])
}
