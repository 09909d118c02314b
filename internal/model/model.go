package model

import (
	"path/filepath"
	"time"
)

// TimestampLayout is the second-resolution layout used in every logged event.
const TimestampLayout = "2006-01-02 15:04:05"

// LogMarker prefixes every encrypted line in the event log.
const LogMarker = "Encrypted Output: "

// CodeRunPrefix starts the cleartext of a cell-execution event.
const CodeRunPrefix = "code run: "

// Reserved response store keys.
const (
	KeySeed        = "seed"
	KeyAssignment  = "assignment"
	KeyFirstName   = "first_name"
	KeyLastName    = "last_name"
	KeyDrexelID    = "drexel_id"
	KeyDrexelEmail = "drexel_email"
	KeyHostname    = "hostname"
	KeyIPAddress   = "ip_address"
	KeyJupyterUser = "jupyter_user"
)

// IdentityKeys lists the identity form fields in the order they are persisted.
var IdentityKeys = []string{
	KeyFirstName,
	KeyLastName,
	KeyDrexelID,
	KeyDrexelEmail,
	KeyHostname,
	KeyIPAddress,
	KeyJupyterUser,
	KeySeed,
}

// RequiredInfoFields must be present in a log before it can be scored.
var RequiredInfoFields = []string{
	KeyAssignment,
	KeyDrexelID,
	KeyFirstName,
	KeyLastName,
	KeyDrexelEmail,
}

// EventKind classifies a decrypted log line.
type EventKind string

const (
	// EventInfo is an identity or session metadata line ("info,<field>,<value>,<ts>").
	EventInfo EventKind = "info"
	// EventAnswer is a scored sub-question line ("q<N>_<M>,<score>,<ts>").
	EventAnswer EventKind = "answer"
	// EventCode is a cell-execution record ("code run: <source>").
	EventCode EventKind = "code"
	// EventOther is any other logged variable.
	EventOther EventKind = "other"
)

// Event is one decrypted log line.
type Event struct {
	Line int       `json:"line"`
	Kind EventKind `json:"kind"`
	Text string    `json:"text"`
}

// Paths locates every file that belongs to one exam session.
// It replaces ambient working-directory globals; build it once per process
// and hand it to the response store, the logger and the validator.
type Paths struct {
	Dir              string
	Responses        string
	ResponsesTemp    string
	Log              string
	ReducedLog       string
	Info             string
	Results          string
	ServerPublicKey  string
	ServerPrivateKey string
	ClientPublicKey  string
	ClientPrivateKey string
}

// DefaultPaths returns the well-known file layout rooted at dir.
func DefaultPaths(dir string) Paths {
	join := func(name string) string { return filepath.Join(dir, name) }
	return Paths{
		Dir:              dir,
		Responses:        join(".responses.json"),
		ResponsesTemp:    join(".responses.tmp"),
		Log:              join(".output.log"),
		ReducedLog:       join(".output_reduced.log"),
		Info:             join("info.json"),
		Results:          join("results.json"),
		ServerPublicKey:  join("server_public_key.bin"),
		ServerPrivateKey: join("server_private_key.bin"),
		ClientPublicKey:  join("client_public_key.bin"),
		ClientPrivateKey: join("client_private_key.bin"),
	}
}

// Rubric maps a question number to its maximum achievable score.
type Rubric map[int]float64

// TestResult is one entry of the score report.
type TestResult struct {
	Name     string `json:"name"`
	Score    int    `json:"score"`
	MaxScore int    `json:"max_score"`
}

// Results is the document written to results.json.
type Results struct {
	Tests []TestResult `json:"tests"`
}

// Timeline holds the session window reconstructed from log timestamps.
type Timeline struct {
	Start          time.Time
	End            time.Time
	ElapsedMinutes float64
}

// Credentials are the basic-auth pair used against the grading service.
type Credentials struct {
	Username string
	Password string
}
