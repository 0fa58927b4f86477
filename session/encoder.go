package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"
)

// CurrentSchemaVersion is the leading byte of every encoded session.
const CurrentSchemaVersion = 1

const maxUserAgentBytes = 512

// ErrCorruptSession is returned by [Decode] for undecodable records.
var ErrCorruptSession = errors.New("session record corrupt")

// Encode serializes s (without plaintext tokens) into the storage format.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(CurrentSchemaVersion)

	if len(s.ID) > 255 {
		return nil, errors.New("session id too long")
	}
	buf.WriteByte(byte(len(s.ID)))
	buf.WriteString(s.ID)

	if len(s.UserID) > 255 {
		return nil, errors.New("userID too long")
	}
	buf.WriteByte(byte(len(s.UserID)))
	buf.WriteString(s.UserID)

	buf.Write(s.AccessHash[:])
	buf.Write(s.RefreshHash[:])

	ua := truncateUTF8(s.Location.UserAgent, maxUserAgentBytes)
	for _, field := range []string{s.Location.IP, ua, s.Location.Country, s.Location.Region, s.Location.City} {
		if len(field) > 0xFFFF {
			return nil, errors.New("location field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt.UnixMilli()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt.UnixMilli()); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// truncateUTF8 cuts v to at most n bytes without splitting a rune.
func truncateUTF8(v string, n int) string {
	if len(v) <= n {
		return v
	}
	for n > 0 && !utf8.RuneStart(v[n]) {
		n--
	}
	return v[:n]
}

// Decode parses a record produced by [Encode].
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	if version != CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: unsupported session schema version %d", ErrCorruptSession, version)
	}

	s := &Session{}

	if s.ID, err = readShortString(reader); err != nil {
		return nil, err
	}
	if s.UserID, err = readShortString(reader); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, s.AccessHash[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	if _, err := io.ReadFull(reader, s.RefreshHash[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}

	fields := []*string{
		&s.Location.IP,
		&s.Location.UserAgent,
		&s.Location.Country,
		&s.Location.Region,
		&s.Location.City,
	}
	for _, field := range fields {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
		}
		raw := make([]byte, n)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
		}
		*field = string(raw)
	}

	var created, expires int64
	if err := binary.Read(reader, binary.BigEndian, &created); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	if err := binary.Read(reader, binary.BigEndian, &expires); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	s.CreatedAt = time.UnixMilli(created)
	s.ExpiresAt = time.UnixMilli(expires)

	if reader.Len() != 0 {
		return nil, fmt.Errorf("%w: trailing bytes", ErrCorruptSession)
	}

	return s, nil
}

func readShortString(reader *bytes.Reader) (string, error) {
	n, err := reader.ReadByte()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	return string(raw), nil
}
