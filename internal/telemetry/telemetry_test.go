package telemetry

import (
	"bufio"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/examtrail/internal/keys"
	"github.com/pavelanni/examtrail/internal/model"
	"github.com/pavelanni/examtrail/internal/responses"
)

func newTestPaths(t *testing.T) model.Paths {
	t.Helper()
	p := model.DefaultPaths(t.TempDir())
	if err := keys.Generate(p, false); err != nil {
		t.Fatalf("keys.Generate: %v", err)
	}
	return p
}

// readLog decrypts every marked line of the session log.
func readLog(t *testing.T, p model.Paths) []string {
	t.Helper()
	pair, err := keys.LoadReceiver(p)
	if err != nil {
		t.Fatalf("LoadReceiver: %v", err)
	}
	f, err := os.Open(p.Log)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		_, payload, ok := strings.Cut(scanner.Text(), model.LogMarker)
		if !ok {
			continue
		}
		plain, err := Open(strings.TrimSpace(payload), pair)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		out = append(out, plain)
	}
	return out
}

func TestSealOpenRoundTrip(t *testing.T) {
	p := newTestPaths(t)
	sender, _ := keys.LoadSender(p)
	receiver, _ := keys.LoadReceiver(p)

	messages := []string{"", "info, first_name, Ada, 2024-01-01 10:00:00", "code run: print('héllo, wörld')\nx = 1"}
	for _, msg := range messages {
		enc, err := Seal(msg, sender)
		if err != nil {
			t.Fatalf("Seal: %v", err)
		}
		got, err := Open(enc, receiver)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if got != msg {
			t.Errorf("round trip mismatch: got %q, want %q", got, msg)
		}
	}
}

func TestSealUsesFreshNonce(t *testing.T) {
	p := newTestPaths(t)
	sender, _ := keys.LoadSender(p)

	a, _ := Seal("same", sender)
	b, _ := Seal("same", sender)
	if a == b {
		t.Error("two encryptions of the same cleartext must differ")
	}
}

func TestOpenRejectsWrongKeys(t *testing.T) {
	p := newTestPaths(t)
	other := newTestPaths(t)

	sender, _ := keys.LoadSender(p)
	enc, err := Seal("q1_1, 3, 2024-01-01 10:00:00", sender)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("other deployment", func(t *testing.T) {
		wrong, _ := keys.LoadReceiver(other)
		if _, err := Open(enc, wrong); !errors.Is(err, ErrOpen) {
			t.Errorf("expected ErrOpen, got %v", err)
		}
	})

	t.Run("halves of the same keypair", func(t *testing.T) {
		receiver, _ := keys.LoadReceiver(p)
		mixed := keys.Pair{Private: receiver.Private, Peer: sender.Peer}
		if _, err := Open(enc, mixed); !errors.Is(err, ErrOpen) {
			t.Errorf("expected ErrOpen, got %v", err)
		}
	})

	t.Run("tampered ciphertext", func(t *testing.T) {
		receiver, _ := keys.LoadReceiver(p)
		b := []byte(enc)
		if b[40] == 'A' {
			b[40] = 'B'
		} else {
			b[40] = 'A'
		}
		if _, err := Open(string(b), receiver); err == nil {
			t.Error("expected error for tampered ciphertext")
		}
	})
}

func TestLoggerAppendsEncryptedLines(t *testing.T) {
	p := newTestPaths(t)
	l := NewLogger(p)
	l.now = func() time.Time { return time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local) }

	l.RecordCellExecution("x = 1")
	l.RecordVariable(3, "q1_1")
	l.RecordInfo("first_name", "Ada")

	got := readLog(t, p)
	want := []string{
		"code run: x = 1",
		"q1_1, 3, 2024-01-01 10:00:00",
		"info, first_name, Ada, 2024-01-01 10:00:00",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, got[i], want[i])
		}
	}

	data, _ := os.ReadFile(p.Log)
	if strings.Contains(string(data), "Ada") {
		t.Error("log file must not contain cleartext")
	}
}

func TestLoggerSwallowsMissingKeys(t *testing.T) {
	p := model.DefaultPaths(t.TempDir())
	l := NewLogger(p)

	l.RecordCellExecution("print(1)")
	l.RecordVariable("v", "label")

	if l.Dropped() != 2 {
		t.Errorf("expected 2 dropped events, got %d", l.Dropped())
	}
	if _, err := os.Stat(p.Log); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected no log file, stat err = %v", err)
	}
	if err := l.Append("x"); err == nil {
		t.Error("Append must surface the error")
	}
}

func TestHooksRecoverPanics(t *testing.T) {
	h := NewHooks()
	var calls []string
	h.Register("boom", func(string) { panic("kaboom") })
	h.Register("log", func(src string) { calls = append(calls, src) })

	h.PreRunCell("a = 1")
	h.Register("log", func(src string) { calls = append(calls, "replaced:"+src) })
	h.PreRunCell("b = 2")

	if len(calls) != 2 || calls[0] != "a = 1" || calls[1] != "replaced:b = 2" {
		t.Errorf("unexpected calls: %v", calls)
	}
}

func TestSessionFlow(t *testing.T) {
	p := newTestPaths(t)
	s := NewSession(p, nil)

	if err := s.Initialize("week1"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !s.Hooks.Registered(HookName) {
		t.Fatal("telemetry hook not registered")
	}

	if err := s.RecordAnswer("q1_1", "B", 2); !errors.Is(err, responses.ErrNoSeed) {
		t.Fatalf("expected ErrNoSeed before identity, got %v", err)
	}

	_, err := s.SubmitIdentity(responses.Identity{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		DrexelID:    "al123",
		DrexelEmail: "al123@drexel.edu",
		Hostname:    "kernel-1",
		IPAddress:   "10.0.0.5",
		JupyterUser: "al123",
	})
	if err != nil {
		t.Fatalf("SubmitIdentity: %v", err)
	}

	s.Hooks.PreRunCell("answer = 42")
	if err := s.RecordAnswer("q1_1", "B", 2); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}

	events := readLog(t, p)
	var infos, answers, code int
	for _, e := range events {
		switch {
		case strings.HasPrefix(e, "info, "):
			infos++
		case strings.HasPrefix(e, "q1_1, 2, "):
			answers++
		case e == "code run: answer = 42":
			code++
		}
	}
	if infos != 1+len(model.IdentityKeys) {
		t.Errorf("expected %d info events, got %d", 1+len(model.IdentityKeys), infos)
	}
	if answers != 1 || code != 1 {
		t.Errorf("expected one answer and one code event, got %d and %d", answers, code)
	}
}
