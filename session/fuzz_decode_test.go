package session

import (
	"testing"
	"time"
)

// FuzzSessionDecode feeds arbitrary bytes to the decoder: no panics, errors
// for malformed input, and anything decoded must re-encode.
func FuzzSessionDecode(f *testing.F) {
	sess := &Session{
		ID:          "1790000000000000000",
		UserID:      "1780000000000000000",
		AccessHash:  [32]byte{1},
		RefreshHash: [32]byte{2},
		Location: Location{
			IP:        "203.0.113.7",
			UserAgent: "Mozilla/5.0",
			Country:   "NZ",
		},
		CreatedAt: time.UnixMilli(1700000000000),
		ExpiresAt: time.UnixMilli(1702592000000),
	}
	encoded, err := Encode(sess)
	if err == nil {
		f.Add(encoded)
	}

	f.Add([]byte{})
	f.Add([]byte{0})
	f.Add([]byte{CurrentSchemaVersion})
	f.Add([]byte{255, 255, 255})

	if len(encoded) > 10 {
		f.Add(encoded[:10])
	}
	if len(encoded) > 80 {
		f.Add(encoded[:80])
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		s, err := Decode(data)
		if err != nil {
			return
		}
		if _, err := Encode(s); err != nil {
			t.Fatalf("re-encode of decoded session failed: %v", err)
		}
	})
}
