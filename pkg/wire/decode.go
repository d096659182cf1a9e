package wire

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/seekscale/smbcacheproxy/internal/protocol/smb2"
)

// decodeUTF16LE decodes a raw UTF-16LE byte slice (as carried on the SMB2
// wire for share/file names) into a Go string.
func decodeUTF16LE(b []byte) string {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	u16 := make([]uint16, len(b)/2)
	for i := range u16 {
		u16[i] = binary.LittleEndian.Uint16(b[i*2 : i*2+2])
	}
	return string(utf16.Decode(u16))
}

// nameFromBody extracts a UTF-16LE name field given the body-relative
// offset/length pair as carried by most SMB2 requests (offsets on the wire
// are relative to the 64-byte header, so callers pass nameOffset-HeaderSize).
func nameFromBody(body []byte, bodyOffset, length int, minBodyOffset int) (string, error) {
	if length == 0 {
		return "", nil
	}
	if bodyOffset < minBodyOffset {
		bodyOffset = minBodyOffset
	}
	if bodyOffset < 0 || bodyOffset+length > len(body) {
		return "", fmt.Errorf("wire: name field out of range (offset=%d length=%d bodyLen=%d)", bodyOffset, length, len(body))
	}
	return decodeUTF16LE(body[bodyOffset : bodyOffset+length]), nil
}

// TreeConnectRequest is the decoded fixed+variable part of a TREE_CONNECT
// request the proxy cares about: the UNC share path being connected.
type TreeConnectRequest struct {
	Path string
}

// DecodeTreeConnectRequest decodes [MS-SMB2] 2.2.9: the 8-byte fixed part
// (structure_size, flags/reserved, path_offset, path_length) followed by
// the UTF-16LE share path.
func DecodeTreeConnectRequest(body []byte) (*TreeConnectRequest, error) {
	if len(body) < 8 {
		return nil, fmt.Errorf("wire: TREE_CONNECT request too short: %d bytes", len(body))
	}
	pathOffset := binary.LittleEndian.Uint16(body[4:6])
	pathLength := binary.LittleEndian.Uint16(body[6:8])

	path, err := nameFromBody(body, int(pathOffset)-HeaderSize, int(pathLength), 8)
	if err != nil {
		return nil, err
	}
	return &TreeConnectRequest{Path: path}, nil
}

// TreeConnectResponse carries the result of a TREE_CONNECT; the proxy only
// needs to know whether it succeeded (status 0 on the enclosing header).
type TreeConnectResponse struct{}

// CreateRequest is the subset of an SMB2 CREATE request the proxy inspects:
// the desired access mask, create options, and filename.
type CreateRequest struct {
	DesiredAccess smb2.AccessMask
	CreateOptions smb2.CreateOptions
	FileName      string
}

// DoWrite reports whether the requested access implies the client may
// write to the file, per §4.F's access-mask union.
func (r *CreateRequest) DoWrite() bool {
	const writeMask = smb2.FileWriteData | smb2.FileAppendData | smb2.FileWriteAttributes |
		smb2.MaximumAllowed | smb2.GenericAll | smb2.GenericWrite
	return r.DesiredAccess&writeMask != 0
}

// DoDelete reports whether the create options request delete-on-close.
func (r *CreateRequest) DoDelete() bool {
	return r.CreateOptions&smb2.FileDeleteOnClose != 0
}

// DecodeCreateRequest decodes the 56-byte fixed part of [MS-SMB2] 2.2.13
// plus the UTF-16LE filename in the variable part.
func DecodeCreateRequest(body []byte) (*CreateRequest, error) {
	if len(body) < 56 {
		return nil, fmt.Errorf("wire: CREATE request too short: %d bytes", len(body))
	}

	req := &CreateRequest{
		DesiredAccess: smb2.AccessMask(binary.LittleEndian.Uint32(body[24:28])),
		CreateOptions: smb2.CreateOptions(binary.LittleEndian.Uint32(body[40:44])),
	}

	nameOffset := binary.LittleEndian.Uint16(body[44:46])
	nameLength := binary.LittleEndian.Uint16(body[46:48])

	name, err := nameFromBody(body, int(nameOffset)-HeaderSize, int(nameLength), 56)
	if err != nil {
		return nil, err
	}
	req.FileName = name
	return req, nil
}

// CreateResponse is the subset of an SMB2 CREATE response the proxy needs:
// the granted file-id. Only meaningful when the enclosing header's status
// is 0 (STATUS_SUCCESS).
type CreateResponse struct {
	FileID [16]byte
}

// DecodeCreateResponse decodes the 88-byte fixed part of [MS-SMB2] 2.2.14,
// extracting only the FileId field at offset 64.
func DecodeCreateResponse(body []byte) (*CreateResponse, error) {
	if len(body) < 80 {
		return nil, fmt.Errorf("wire: CREATE response too short: %d bytes", len(body))
	}
	resp := &CreateResponse{}
	copy(resp.FileID[:], body[64:80])
	return resp, nil
}

// QueryDirectoryRequest is the subset of [MS-SMB2] 2.2.33 the proxy needs:
// the file-id of the directory handle being enumerated.
type QueryDirectoryRequest struct {
	FileID [16]byte
}

// DecodeQueryDirectoryRequest decodes the 32-byte fixed part of a
// QUERY_DIRECTORY request; the file-id sits at offset 8.
func DecodeQueryDirectoryRequest(body []byte) (*QueryDirectoryRequest, error) {
	if len(body) < 24 {
		return nil, fmt.Errorf("wire: QUERY_DIRECTORY request too short: %d bytes", len(body))
	}
	req := &QueryDirectoryRequest{}
	copy(req.FileID[:], body[8:24])
	return req, nil
}

// SetInfoRequest is the subset of [MS-SMB2] 2.2.39 the proxy needs: the
// info type, file information class, the raw buffer, and the file-id.
type SetInfoRequest struct {
	InfoType      smb2.InfoType
	FileInfoClass smb2.FileInfoClass
	FileID        [16]byte
	Buffer        []byte
}

// DecodeSetInfoRequest decodes the 32-byte fixed part of SET_INFO plus the
// variable buffer (the data being set).
func DecodeSetInfoRequest(body []byte) (*SetInfoRequest, error) {
	if len(body) < 32 {
		return nil, fmt.Errorf("wire: SET_INFO request too short: %d bytes", len(body))
	}

	req := &SetInfoRequest{
		InfoType:      smb2.InfoType(body[2]),
		FileInfoClass: smb2.FileInfoClass(body[3]),
	}
	bufferLength := binary.LittleEndian.Uint32(body[4:8])
	bufferOffset := binary.LittleEndian.Uint16(body[8:10])
	copy(req.FileID[:], body[16:32])

	start := int(bufferOffset) - HeaderSize
	if start < 32 {
		start = 32
	}
	if start >= 0 && start+int(bufferLength) <= len(body) {
		req.Buffer = body[start : start+int(bufferLength)]
	}

	return req, nil
}

// FileDispositionDelete reports whether a SET_INFO(FileDispositionInformation)
// buffer requests delete-on-close (a single non-zero byte).
func (r *SetInfoRequest) FileDispositionDelete() bool {
	return len(r.Buffer) >= 1 && r.Buffer[0] != 0
}

// CloseRequest is the subset of [MS-SMB2] 2.2.15 the proxy needs: the file-id
// being closed.
type CloseRequest struct {
	FileID [16]byte
}

// DecodeCloseRequest decodes the 24-byte fixed part of a CLOSE request; the
// file-id sits at offset 8.
func DecodeCloseRequest(body []byte) (*CloseRequest, error) {
	if len(body) < 24 {
		return nil, fmt.Errorf("wire: CLOSE request too short: %d bytes", len(body))
	}
	req := &CloseRequest{}
	copy(req.FileID[:], body[8:24])
	return req, nil
}
