package wire

import "fmt"

// Message is one SMB2 command within a session-message body: its header and
// the raw bytes of its own body (the slice between this header and the
// next command's header, or to the end of the session message).
type Message struct {
	Header *Header
	Body   []byte

	// Offset is this message's byte offset within the session-message body.
	Offset int
}

// ParseChain walks a session-message body, following next_command_offset,
// and returns one Message per chained SMB2 command. An SMB1 body (checked
// by the caller via IsSMB1) must never be passed here.
func ParseChain(body []byte) ([]Message, error) {
	var messages []Message

	offset := 0
	for {
		if offset >= len(body) {
			break
		}
		remaining := body[offset:]
		hdr, err := ParseHeader(remaining)
		if err != nil {
			return nil, fmt.Errorf("wire: parse chain at offset %d: %w", offset, err)
		}

		var msgBody []byte
		if hdr.NextCommand > 0 {
			end := int(hdr.NextCommand)
			if end > len(remaining) || end < HeaderSize {
				return nil, fmt.Errorf("wire: invalid next_command_offset %d at offset %d", hdr.NextCommand, offset)
			}
			msgBody = remaining[HeaderSize:end]
		} else {
			msgBody = remaining[HeaderSize:]
		}

		messages = append(messages, Message{Header: hdr, Body: msgBody, Offset: offset})

		if hdr.NextCommand == 0 {
			break
		}
		offset += int(hdr.NextCommand)
	}

	return messages, nil
}
