package responses

import (
	"errors"
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"

	"github.com/pavelanni/examtrail/internal/model"
)

var emailPattern = regexp.MustCompile(`^[a-z]+\d+@drexel\.edu$`)

// ErrInvalidIdentity wraps every identity form validation failure.
var ErrInvalidIdentity = errors.New("invalid student information")

// Identity is the content of the student information form.
type Identity struct {
	FirstName   string
	LastName    string
	DrexelID    string
	DrexelEmail string
	Hostname    string
	IPAddress   string
	JupyterUser string
	Seed        int64
}

// Complete trims the typed fields and fills in the machine-derived ones.
func (id *Identity) Complete() {
	id.FirstName = strings.TrimSpace(id.FirstName)
	id.LastName = strings.TrimSpace(id.LastName)
	id.DrexelID = strings.TrimSpace(id.DrexelID)
	id.DrexelEmail = strings.TrimSpace(id.DrexelEmail)

	if id.Hostname == "" {
		id.Hostname, _ = os.Hostname()
	}
	if id.JupyterUser == "" {
		id.JupyterUser = os.Getenv("JUPYTERHUB_USER")
		if id.JupyterUser == "" {
			id.JupyterUser = "Not on JupyterHub"
		}
	}
	if id.IPAddress == "" {
		id.IPAddress = lookupIP(id.Hostname)
	}
}

func lookupIP(host string) string {
	addrs, err := net.LookupHost(host)
	if err != nil || len(addrs) == 0 {
		return "IP unavailable"
	}
	return addrs[0]
}

// Validate checks that every field is filled in and that the id matches the
// e-mail local part.
func (id Identity) Validate() error {
	for _, kv := range id.Pairs() {
		if s, ok := kv.Value.(string); ok && s == "" {
			return fmt.Errorf("%w: missing form input: %s", ErrInvalidIdentity, kv.Key)
		}
	}
	if !emailPattern.MatchString(id.DrexelEmail) {
		return fmt.Errorf("%w: invalid email format: %s", ErrInvalidIdentity, id.DrexelEmail)
	}
	prefix, _, _ := strings.Cut(id.DrexelEmail, "@")
	if id.DrexelID != prefix {
		return fmt.Errorf("%w: drexel id %s does not match email %s", ErrInvalidIdentity, id.DrexelID, id.DrexelEmail)
	}
	return nil
}

// Pairs returns the identity fields keyed by their response store names, in
// the order of model.IdentityKeys.
func (id Identity) Pairs() []KeyValue {
	return []KeyValue{
		{model.KeyFirstName, id.FirstName},
		{model.KeyLastName, id.LastName},
		{model.KeyDrexelID, id.DrexelID},
		{model.KeyDrexelEmail, id.DrexelEmail},
		{model.KeyHostname, id.Hostname},
		{model.KeyIPAddress, id.IPAddress},
		{model.KeyJupyterUser, id.JupyterUser},
		{model.KeySeed, id.Seed},
	}
}

// SubmitIdentity completes and validates id, keeps any seed already stored,
// and persists every identity key in one atomic write.
func (s *Store) SubmitIdentity(id Identity) (Identity, error) {
	id.Complete()

	if seed, err := s.Seed(); err == nil {
		id.Seed = seed
	} else {
		id.Seed = RandomSeed()
	}

	if err := id.Validate(); err != nil {
		return id, err
	}
	if _, err := s.UpdateMany(id.Pairs()); err != nil {
		return id, fmt.Errorf("store identity: %w", err)
	}
	return id, nil
}
