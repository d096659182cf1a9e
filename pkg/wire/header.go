package wire

import (
	"encoding/binary"
	"errors"

	"github.com/seekscale/smbcacheproxy/internal/protocol/smb2"
)

// HeaderSize is the fixed size of an SMB2 header, sync or async variant.
// [MS-SMB2] Section 2.2.1.
const HeaderSize = 64

var (
	// ErrInvalidProtocolID means the 4-byte magic did not match `\xFESMB`.
	ErrInvalidProtocolID = errors.New("wire: invalid SMB2 protocol id")
	// ErrMessageTooShort means fewer than HeaderSize bytes were available.
	ErrMessageTooShort = errors.New("wire: message too short for SMB2 header")
	// ErrInvalidHeaderSize means the structure_size field was not 64.
	ErrInvalidHeaderSize = errors.New("wire: invalid SMB2 header structure size")
)

// Header is the subset of the 64-byte SMB2 header the proxy inspects. The
// sync and async header variants share every field used here; process_id
// (sync) / async_id (async) is never consulted by the proxy so the two are
// not distinguished.
type Header struct {
	CreditCharge uint16
	Status       uint32
	Command      smb2.Command
	CreditReq    uint16
	Flags        smb2.HeaderFlags
	NextCommand  uint32
	MessageID    uint64
	TreeID       uint32
	SessionID    uint64
	Signature    [16]byte
}

// ParseHeader decodes the fixed 64-byte SMB2 header from the start of data.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, ErrMessageTooShort
	}

	if binary.LittleEndian.Uint32(data[0:4]) != smb2.SMB2ProtocolID {
		return nil, ErrInvalidProtocolID
	}
	if binary.LittleEndian.Uint16(data[4:6]) != HeaderSize {
		return nil, ErrInvalidHeaderSize
	}

	h := &Header{
		CreditCharge: binary.LittleEndian.Uint16(data[6:8]),
		Status:       binary.LittleEndian.Uint32(data[8:12]),
		Command:      smb2.Command(binary.LittleEndian.Uint16(data[12:14])),
		CreditReq:    binary.LittleEndian.Uint16(data[14:16]),
		Flags:        smb2.HeaderFlags(binary.LittleEndian.Uint32(data[16:20])),
		NextCommand:  binary.LittleEndian.Uint32(data[20:24]),
		MessageID:    binary.LittleEndian.Uint64(data[24:32]),
		// data[32:36] is process_id (sync) / reserved (async) - unused.
		TreeID:    binary.LittleEndian.Uint32(data[36:40]),
		SessionID: binary.LittleEndian.Uint64(data[40:48]),
	}
	copy(h.Signature[:], data[48:64])

	return h, nil
}

// TreeIDReuse is the sentinel tree-id (0xFFFFFFFF) meaning "the tree
// connected earlier in this compound chain", used by related operations.
const TreeIDReuse uint32 = 0xFFFFFFFF

// RelatedFileID is the sentinel file-id (16 bytes of 0xFF) meaning "reuse
// the file opened by the preceding CREATE in this compound chain".
var RelatedFileID = [16]byte{
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
}
