// Package keys loads and provisions the raw Curve25519 key files that back the
// encrypted event log.
//
// Two distinct keypairs are involved. The notebook side holds the client
// private key and the server public key; the grading side holds the server
// private key and the client public key.
package keys

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/box"

	"github.com/pavelanni/examtrail/internal/model"
)

// Size is the length in bytes of every raw key file.
const Size = 32

// ErrKeySize is returned when a key file does not hold exactly Size bytes.
var ErrKeySize = errors.New("key file has wrong size")

// ErrExists is returned by Generate when a key file is already present.
var ErrExists = errors.New("key file already exists")

// Key is a raw Curve25519 public or private key.
type Key = [Size]byte

// Pair is the (own private, peer public) combination needed to open a box.
type Pair struct {
	Private *Key
	Peer    *Key
}

// Load reads one raw key file.
func Load(path string) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key %s: %w", path, err)
	}
	if len(data) != Size {
		return nil, fmt.Errorf("key %s: %w (got %d bytes, want %d)", path, ErrKeySize, len(data), Size)
	}
	var k Key
	copy(k[:], data)
	return &k, nil
}

// LoadSender returns the keys used to encrypt: client private + server public.
func LoadSender(p model.Paths) (Pair, error) {
	return loadPair(p.ClientPrivateKey, p.ServerPublicKey)
}

// LoadReceiver returns the keys used to decrypt: server private + client public.
func LoadReceiver(p model.Paths) (Pair, error) {
	return loadPair(p.ServerPrivateKey, p.ClientPublicKey)
}

func loadPair(privPath, peerPath string) (Pair, error) {
	priv, err := Load(privPath)
	if err != nil {
		return Pair{}, err
	}
	peer, err := Load(peerPath)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Private: priv, Peer: peer}, nil
}

// Generate creates a server keypair and a client keypair and writes the four
// raw key files described by p. Existing files are not overwritten unless
// force is set.
func Generate(p model.Paths, force bool) error {
	targets := []string{p.ServerPublicKey, p.ServerPrivateKey, p.ClientPublicKey, p.ClientPrivateKey}
	if !force {
		for _, t := range targets {
			if _, err := os.Stat(t); err == nil {
				return fmt.Errorf("%w: %s", ErrExists, t)
			}
		}
	}

	serverPub, serverPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate server keypair: %w", err)
	}
	clientPub, clientPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate client keypair: %w", err)
	}

	files := []struct {
		path string
		key  *Key
	}{
		{p.ServerPublicKey, serverPub},
		{p.ServerPrivateKey, serverPriv},
		{p.ClientPublicKey, clientPub},
		{p.ClientPrivateKey, clientPriv},
	}
	for _, f := range files {
		if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
			return fmt.Errorf("create key directory: %w", err)
		}
		if err := os.WriteFile(f.path, f.key[:], 0600); err != nil {
			return fmt.Errorf("write key %s: %w", f.path, err)
		}
		slog.Debug("wrote key file", "path", f.path)
	}
	return nil
}
