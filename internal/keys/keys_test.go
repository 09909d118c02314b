package keys

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pavelanni/examtrail/internal/model"
)

func TestGenerateAndLoad(t *testing.T) {
	p := model.DefaultPaths(t.TempDir())
	if err := Generate(p, false); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	sender, err := LoadSender(p)
	if err != nil {
		t.Fatalf("LoadSender: %v", err)
	}
	receiver, err := LoadReceiver(p)
	if err != nil {
		t.Fatalf("LoadReceiver: %v", err)
	}
	if *sender.Private == *receiver.Private {
		t.Error("client and server private keys must differ")
	}

	info, err := os.Stat(p.ServerPrivateKey)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
	}
}

func TestGenerateRefusesOverwrite(t *testing.T) {
	p := model.DefaultPaths(t.TempDir())
	if err := Generate(p, false); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	before, _ := os.ReadFile(p.ClientPrivateKey)

	if err := Generate(p, false); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	after, _ := os.ReadFile(p.ClientPrivateKey)
	if string(before) != string(after) {
		t.Error("existing key was modified")
	}

	if err := Generate(p, true); err != nil {
		t.Fatalf("Generate with force: %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing", func(t *testing.T) {
		if _, err := Load(filepath.Join(dir, "nope.bin")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("wrong size", func(t *testing.T) {
		path := filepath.Join(dir, "short.bin")
		if err := os.WriteFile(path, []byte("short"), 0600); err != nil {
			t.Fatal(err)
		}
		_, err := Load(path)
		if !errors.Is(err, ErrKeySize) {
			t.Errorf("expected ErrKeySize, got %v", err)
		}
	})
}
