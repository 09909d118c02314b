package telemetry

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/box"

	"github.com/pavelanni/examtrail/internal/keys"
)

const nonceSize = 24

// ErrOpen is returned when a ciphertext fails authentication with the given keys.
var ErrOpen = errors.New("decryption failed")

// Seal encrypts cleartext for pair.Peer, authenticated by pair.Private, and
// returns base64(nonce || box). A fresh random nonce is drawn on every call.
func Seal(cleartext string, pair keys.Pair) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := box.Seal(nonce[:], []byte(cleartext), &nonce, pair.Peer, pair.Private)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal using the counterpart keys.
func Open(encoded string, pair keys.Pair) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	if len(raw) < nonceSize+box.Overhead {
		return "", fmt.Errorf("%w: ciphertext too short (%d bytes)", ErrOpen, len(raw))
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	out, ok := box.Open(nil, raw[nonceSize:], &nonce, pair.Peer, pair.Private)
	if !ok {
		return "", ErrOpen
	}
	return string(out), nil
}
