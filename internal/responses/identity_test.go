package responses

import (
	"errors"
	"testing"

	"github.com/pavelanni/examtrail/internal/model"
)

func validIdentity() Identity {
	return Identity{
		FirstName:   " Ada ",
		LastName:    "Lovelace",
		DrexelID:    "al123",
		DrexelEmail: "al123@drexel.edu",
		Hostname:    "kernel-1",
		IPAddress:   "10.0.0.5",
		JupyterUser: "al123",
	}
}

func TestIdentityValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Identity)
		wantErr bool
	}{
		{"valid", func(*Identity) {}, false},
		{"missing first name", func(id *Identity) { id.FirstName = "" }, true},
		{"bad email domain", func(id *Identity) { id.DrexelEmail = "al123@gmail.com" }, true},
		{"uppercase email", func(id *Identity) { id.DrexelEmail = "AL123@drexel.edu" }, true},
		{"id does not match email", func(id *Identity) { id.DrexelID = "xy999" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := validIdentity()
			id.Complete()
			tt.mutate(&id)
			err := id.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubmitIdentityKeepsExistingSeed(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Update(model.KeySeed, 7); err != nil {
		t.Fatal(err)
	}

	id, err := s.SubmitIdentity(validIdentity())
	if err != nil {
		t.Fatalf("SubmitIdentity: %v", err)
	}
	if id.Seed != 7 {
		t.Errorf("expected seed 7 to be kept, got %d", id.Seed)
	}
	if id.FirstName != "Ada" {
		t.Errorf("expected trimmed first name, got %q", id.FirstName)
	}

	vals, err := s.Values(model.IdentityKeys)
	if err != nil {
		t.Fatal(err)
	}
	for _, kv := range vals {
		if kv.Value == nil {
			t.Errorf("identity key %s was not stored", kv.Key)
		}
	}
}

func TestSubmitIdentityRejectsInvalid(t *testing.T) {
	s, _ := newTestStore(t)
	id := validIdentity()
	id.DrexelEmail = "someone@example.com"

	if _, err := s.SubmitIdentity(id); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
	if _, ok, _ := s.Get(model.KeyDrexelEmail); ok {
		t.Error("invalid identity must not be persisted")
	}
}

func TestHashSeed(t *testing.T) {
	a := HashSeed("al123@drexel.edu")
	b := HashSeed("al123@drexel.edu")
	if a != b {
		t.Errorf("HashSeed not deterministic: %d vs %d", a, b)
	}
	if a < 0 || a >= 500 {
		t.Errorf("HashSeed out of range: %d", a)
	}
}

func TestShuffleIsDeterministic(t *testing.T) {
	first := Shuffle([]int{1, 2, 3, 4, 5, 6, 7, 8}, 11)
	second := Shuffle([]int{1, 2, 3, 4, 5, 6, 7, 8}, 11)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("same seed produced different orders: %v vs %v", first, second)
		}
	}
}
