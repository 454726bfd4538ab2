package imsm

import (
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// SCSI generic ioctl header, sg_io_hdr_t in <scsi/sg.h>. Field layout and
// names follow the kernel structure exactly so it can be passed straight
// through SG_IO.
type sgIOHdr struct {
	interfaceID   int32
	dxferDir      int32
	cmdLen        uint8
	mxSbLen       uint8
	iovecCount    uint16
	dxferLen      uint32
	dxferp        uintptr
	cmdp          uintptr
	sbp           uintptr
	timeout       uint32
	flags         uint32
	packID        int32
	usrPtr        uintptr
	status        uint8
	maskedStatus  uint8
	msgStatus     uint8
	sbLenWr       uint8
	hostStatus    uint16
	driverStatus  uint16
	resid         int32
	duration      uint32
	info          uint32
}

const (
	sgDxferFromDev = -3
	sgIOIoctl      = 0x2285
	sgInfoOKMask   = 0x1
	sgInfoOK       = 0x0

	scsiInquiry = 0x12
)

// sgError reports a non-OK SG_INFO mask or a non-zero status from the
// device, host adapter or driver (§4.2).
type sgError struct {
	status       uint8
	hostStatus   uint16
	driverStatus uint16
}

func (e *sgError) Error() string {
	return errors.Errorf("scsi status=%#02x host_status=%#02x driver_status=%#02x",
		e.status, e.hostStatus, e.driverStatus).Error()
}

// SGDevice is a generic-SCSI-capable block device handle, opened by the
// caller against the device's /dev/sgN or bsg node (§6 collaborator
// interfaces: open_device/issue_sg_ioctl).
type SGDevice struct {
	FD int
}

// InquiryPage80 issues INQUIRY with EVPD=1, page=0x80, satisfying the
// sgIoctl interface ReadSerial depends on.
func (d *SGDevice) InquiryPage80(timeout time.Duration) ([]byte, error) {
	const allocLen = 255
	resp := make([]byte, allocLen)
	sense := make([]byte, 32)

	cdb := [6]byte{scsiInquiry, 1, 0x80, 0, allocLen, 0}

	hdr := sgIOHdr{
		interfaceID: 'S',
		dxferDir:    sgDxferFromDev,
		cmdLen:      uint8(len(cdb)),
		mxSbLen:     uint8(len(sense)),
		dxferLen:    uint32(len(resp)),
		dxferp:      uintptr(unsafe.Pointer(&resp[0])),
		cmdp:        uintptr(unsafe.Pointer(&cdb[0])),
		sbp:         uintptr(unsafe.Pointer(&sense[0])),
		timeout:     uint32(timeout / time.Millisecond),
	}

	if err := ioctl(d.FD, sgIOIoctl, uintptr(unsafe.Pointer(&hdr))); err != nil {
		return nil, errors.Wrap(err, "SG_IO ioctl")
	}

	if hdr.info&sgInfoOKMask != sgInfoOK || hdr.status != 0 || hdr.hostStatus != 0 || hdr.driverStatus != 0 {
		return nil, &sgError{status: hdr.status, hostStatus: hdr.hostStatus, driverStatus: hdr.driverStatus}
	}

	return resp, nil
}

func ioctl(fd int, req uint, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), arg)
	if errno != 0 {
		return errno
	}
	return nil
}
