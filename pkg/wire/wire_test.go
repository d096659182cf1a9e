package wire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/seekscale/smbcacheproxy/internal/protocol/smb2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utf16le(s string) []byte {
	u := utf16.Encode([]rune(s))
	buf := make([]byte, len(u)*2)
	for i, c := range u {
		binary.LittleEndian.PutUint16(buf[i*2:], c)
	}
	return buf
}

func buildHeader(command smb2.Command, nextCommand uint32, messageID uint64, treeID uint32) []byte {
	h := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(h[0:4], smb2.SMB2ProtocolID)
	binary.LittleEndian.PutUint16(h[4:6], HeaderSize)
	binary.LittleEndian.PutUint16(h[12:14], uint16(command))
	binary.LittleEndian.PutUint32(h[20:24], nextCommand)
	binary.LittleEndian.PutUint64(h[24:32], messageID)
	binary.LittleEndian.PutUint32(h[36:40], treeID)
	return h
}

func TestNetBIOSRoundTrip(t *testing.T) {
	body := []byte("hello smb2")
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, body))

	got, err := ReadMessage(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestIsSMB1(t *testing.T) {
	smb1 := make([]byte, 32)
	binary.LittleEndian.PutUint32(smb1[0:4], 0x424D53FF)
	assert.True(t, IsSMB1(smb1))

	smb2Body := buildHeader(smb2.CommandNegotiate, 0, 0, 0)
	assert.False(t, IsSMB1(smb2Body))
}

func TestParseHeaderRejectsShortAndBadMagic(t *testing.T) {
	_, err := ParseHeader(make([]byte, 10))
	assert.ErrorIs(t, err, ErrMessageTooShort)

	bad := make([]byte, HeaderSize)
	_, err = ParseHeader(bad)
	assert.ErrorIs(t, err, ErrInvalidProtocolID)
}

func TestParseChainSingleMessage(t *testing.T) {
	hdr := buildHeader(smb2.CommandTreeConnect, 0, 1, 0)
	body := append(hdr, []byte("payload")...)

	msgs, err := ParseChain(body)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, smb2.CommandTreeConnect, msgs[0].Header.Command)
	assert.Equal(t, []byte("payload"), msgs[0].Body)
}

func TestParseChainCompound(t *testing.T) {
	createHdr := buildHeader(smb2.CommandCreate, 0, 0, 0)
	createBody := make([]byte, 56)
	firstMsgLen := HeaderSize + len(createBody)

	readHdr := buildHeader(smb2.CommandRead, 0, 1, 0)
	readBody := []byte("readargs")

	var buf bytes.Buffer
	binary.LittleEndian.PutUint32(createHdr[20:24], uint32(firstMsgLen))
	buf.Write(createHdr)
	buf.Write(createBody)
	buf.Write(readHdr)
	buf.Write(readBody)

	msgs, err := ParseChain(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, smb2.CommandCreate, msgs[0].Header.Command)
	assert.Equal(t, smb2.CommandRead, msgs[1].Header.Command)
	assert.Equal(t, readBody, msgs[1].Body)
}

func TestDecodeTreeConnectRequest(t *testing.T) {
	path := `\\HOST\SHARE`
	pathBytes := utf16le(path)

	body := make([]byte, 8+len(pathBytes))
	binary.LittleEndian.PutUint16(body[4:6], uint16(HeaderSize+8))
	binary.LittleEndian.PutUint16(body[6:8], uint16(len(pathBytes)))
	copy(body[8:], pathBytes)

	req, err := DecodeTreeConnectRequest(body)
	require.NoError(t, err)
	assert.Equal(t, path, req.Path)
}

func TestDecodeCreateRequestAndFlags(t *testing.T) {
	name := `dir\a.txt`
	nameBytes := utf16le(name)

	body := make([]byte, 56+len(nameBytes))
	binary.LittleEndian.PutUint32(body[24:28], uint32(smb2.GenericWrite))
	binary.LittleEndian.PutUint32(body[40:44], uint32(smb2.FileDeleteOnClose))
	binary.LittleEndian.PutUint16(body[44:46], uint16(HeaderSize+56))
	binary.LittleEndian.PutUint16(body[46:48], uint16(len(nameBytes)))
	copy(body[56:], nameBytes)

	req, err := DecodeCreateRequest(body)
	require.NoError(t, err)
	assert.Equal(t, name, req.FileName)
	assert.True(t, req.DoWrite())
	assert.True(t, req.DoDelete())
}

func TestDecodeCreateResponseFileID(t *testing.T) {
	body := make([]byte, 88)
	var fid [16]byte
	for i := range fid {
		fid[i] = byte(i + 1)
	}
	copy(body[64:80], fid[:])

	resp, err := DecodeCreateResponse(body)
	require.NoError(t, err)
	assert.Equal(t, fid, resp.FileID)
}

func TestDecodeSetInfoFileDisposition(t *testing.T) {
	body := make([]byte, 32+1)
	body[2] = byte(smb2.InfoTypeFile)
	body[3] = byte(smb2.FileDispositionInformation)
	binary.LittleEndian.PutUint32(body[4:8], 1)
	binary.LittleEndian.PutUint16(body[8:10], uint16(HeaderSize+32))
	body[32] = 1

	req, err := DecodeSetInfoRequest(body)
	require.NoError(t, err)
	assert.Equal(t, smb2.InfoTypeFile, req.InfoType)
	assert.Equal(t, smb2.FileDispositionInformation, req.FileInfoClass)
	assert.True(t, req.FileDispositionDelete())
}

func TestDecodeCloseRequestFileID(t *testing.T) {
	body := make([]byte, 24)
	var fid [16]byte
	fid[0] = 0xAB
	copy(body[8:24], fid[:])

	req, err := DecodeCloseRequest(body)
	require.NoError(t, err)
	assert.Equal(t, fid, req.FileID)
}

func TestRelatedFileIDSentinel(t *testing.T) {
	for _, b := range RelatedFileID {
		assert.Equal(t, byte(0xFF), b)
	}
}
