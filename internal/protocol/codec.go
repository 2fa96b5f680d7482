package protocol

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// DecodeError reports a malformed frame. It is never fatal to the
// connection by itself — callers log and drop the frame.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "protocol: " + e.Reason
}

func errInvalidLength(expected, actual int) error {
	return &DecodeError{Reason: fmt.Sprintf("invalid length: expected %d, got %d", expected, actual)}
}

func errUnknownTag(tag byte) error {
	return &DecodeError{Reason: fmt.Sprintf("unknown message type: 0x%02x", tag)}
}

// Encode serialises a Message into a freshly allocated byte slice ready
// to write to the wire. All multi-byte integers are big-endian.
func Encode(m Message) []byte {
	switch m.Tag {
	case TagCursorUpdate:
		buf := make([]byte, 7)
		buf[0] = byte(TagCursorUpdate)
		binary.BigEndian.PutUint16(buf[1:3], uint16(m.BoardID))
		binary.BigEndian.PutUint16(buf[3:5], m.X)
		binary.BigEndian.PutUint16(buf[5:7], m.Y)
		return buf

	case TagCursorBroadcast:
		buf := make([]byte, 8)
		buf[0] = byte(TagCursorBroadcast)
		binary.BigEndian.PutUint16(buf[1:3], uint16(m.BoardID))
		buf[3] = byte(m.UserID)
		binary.BigEndian.PutUint16(buf[4:6], m.X)
		binary.BigEndian.PutUint16(buf[6:8], m.Y)
		return buf

	case TagJoin:
		name := []byte(m.Username)
		buf := make([]byte, 4+len(name))
		buf[0] = byte(TagJoin)
		binary.BigEndian.PutUint16(buf[1:3], uint16(m.BoardID))
		buf[3] = byte(len(name))
		copy(buf[4:], name)
		return buf

	case TagLeave:
		buf := make([]byte, 3)
		buf[0] = byte(TagLeave)
		binary.BigEndian.PutUint16(buf[1:3], uint16(m.BoardID))
		return buf

	case TagUserJoined:
		name := []byte(m.Username)
		buf := make([]byte, 8+len(name))
		buf[0] = byte(TagUserJoined)
		binary.BigEndian.PutUint16(buf[1:3], uint16(m.BoardID))
		buf[3] = byte(m.UserID)
		buf[4] = byte(len(name))
		copy(buf[5:], name)
		copy(buf[5+len(name):], m.Color[:])
		return buf

	case TagUserLeft:
		buf := make([]byte, 4)
		buf[0] = byte(TagUserLeft)
		binary.BigEndian.PutUint16(buf[1:3], uint16(m.BoardID))
		buf[3] = byte(m.UserID)
		return buf

	case TagPresenceUpdate:
		buf := make([]byte, 4)
		buf[0] = byte(TagPresenceUpdate)
		binary.BigEndian.PutUint16(buf[1:3], uint16(m.BoardID))
		buf[3] = m.Count
		return buf

	case TagHeartbeat:
		return []byte{byte(TagHeartbeat)}

	default:
		// Encode is only ever called on Messages this package constructed;
		// an unknown tag here is a programmer error, not a wire error.
		panic(fmt.Sprintf("protocol: cannot encode unknown tag 0x%02x", m.Tag))
	}
}

// Decode parses a byte slice received from the wire into a Message.
// Every fixed-size variant checks exact length; variable-size variants
// check the length prefix against MaxUsernameLength and reject
// non-UTF-8 payloads.
func Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return Message{}, errInvalidLength(1, 0)
	}

	tag := Tag(data[0])

	switch tag {
	case TagCursorUpdate:
		if len(data) != 7 {
			return Message{}, errInvalidLength(7, len(data))
		}
		return CursorUpdate(
			BoardID(binary.BigEndian.Uint16(data[1:3])),
			binary.BigEndian.Uint16(data[3:5]),
			binary.BigEndian.Uint16(data[5:7]),
		), nil

	case TagCursorBroadcast:
		if len(data) != 8 {
			return Message{}, errInvalidLength(8, len(data))
		}
		return CursorBroadcast(
			BoardID(binary.BigEndian.Uint16(data[1:3])),
			UserID(data[3]),
			binary.BigEndian.Uint16(data[4:6]),
			binary.BigEndian.Uint16(data[6:8]),
		), nil

	case TagJoin:
		if len(data) < 4 {
			return Message{}, errInvalidLength(4, len(data))
		}
		board := BoardID(binary.BigEndian.Uint16(data[1:3]))
		name, err := decodeString(data[3:])
		if err != nil {
			return Message{}, err
		}
		return Join(board, name), nil

	case TagLeave:
		if len(data) != 3 {
			return Message{}, errInvalidLength(3, len(data))
		}
		return Leave(BoardID(binary.BigEndian.Uint16(data[1:3]))), nil

	case TagUserJoined:
		if len(data) < 8 {
			return Message{}, errInvalidLength(8, len(data))
		}
		board := BoardID(binary.BigEndian.Uint16(data[1:3]))
		user := UserID(data[3])
		nameLen := int(data[4])
		if nameLen > MaxUsernameLength {
			return Message{}, &DecodeError{Reason: fmt.Sprintf("username too long: %d bytes (max %d)", nameLen, MaxUsernameLength)}
		}
		if len(data) != 5+nameLen+3 {
			return Message{}, errInvalidLength(5+nameLen+3, len(data))
		}
		name := data[5 : 5+nameLen]
		if !utf8.Valid(name) {
			return Message{}, &DecodeError{Reason: "invalid UTF-8 in username"}
		}
		var color Color
		copy(color[:], data[5+nameLen:5+nameLen+3])
		return UserJoined(board, user, string(name), color), nil

	case TagUserLeft:
		if len(data) != 4 {
			return Message{}, errInvalidLength(4, len(data))
		}
		return UserLeft(
			BoardID(binary.BigEndian.Uint16(data[1:3])),
			UserID(data[3]),
		), nil

	case TagPresenceUpdate:
		if len(data) != 4 {
			return Message{}, errInvalidLength(4, len(data))
		}
		return PresenceUpdate(
			BoardID(binary.BigEndian.Uint16(data[1:3])),
			data[3],
		), nil

	case TagHeartbeat:
		if len(data) != 1 {
			return Message{}, errInvalidLength(1, len(data))
		}
		return Heartbeat(), nil

	default:
		return Message{}, errUnknownTag(data[0])
	}
}

// decodeString reads a 1-byte length prefix followed by that many UTF-8
// bytes from buf (which must start at the length byte).
func decodeString(buf []byte) (string, error) {
	if len(buf) < 1 {
		return "", errInvalidLength(1, len(buf))
	}
	n := int(buf[0])
	if n > MaxUsernameLength {
		return "", &DecodeError{Reason: fmt.Sprintf("username too long: %d bytes (max %d)", n, MaxUsernameLength)}
	}
	if len(buf) != 1+n {
		return "", errInvalidLength(1+n, len(buf))
	}
	name := buf[1:]
	if !utf8.Valid(name) {
		return "", &DecodeError{Reason: "invalid UTF-8 in username"}
	}
	return string(name), nil
}

// NormalizeCoord maps a normalised [0.0, 1.0] coordinate to a u16,
// clamping out-of-range input before scaling. Matches the reference
// encoder's truncating cast rather than round-to-nearest, so
// NormalizeCoord(0.5) == 32767.
func NormalizeCoord(v float64) uint16 {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	return uint16(v * 65535.0)
}

// DenormalizeCoord is the inverse of NormalizeCoord.
func DenormalizeCoord(v uint16) float64 {
	return float64(v) / 65535.0
}
