package telemetry

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/pavelanni/examtrail/internal/model"
	"github.com/pavelanni/examtrail/internal/responses"
)

// HookName is the registry name of the cell-execution logger.
const HookName = "telemetry"

// Session bundles the per-student state that notebook widgets write to: the
// response store and the encrypted logger. Construct one per kernel.
type Session struct {
	Paths     model.Paths
	Responses *responses.Store
	Logger    *Logger
	Hooks     *Hooks
}

// NewSession wires a session for the files in p.
func NewSession(p model.Paths, hooks *Hooks) *Session {
	if hooks == nil {
		hooks = NewHooks()
	}
	return &Session{
		Paths:     p,
		Responses: responses.New(p),
		Logger:    NewLogger(p),
		Hooks:     hooks,
	}
}

// Initialize registers the cell-execution hook and records the assignment
// name in both the response store and the log.
func (s *Session) Initialize(assignment string) error {
	s.Hooks.Register(HookName, s.Logger.RecordCellExecution)

	if _, err := s.Responses.Update(model.KeyAssignment, assignment); err != nil {
		return fmt.Errorf("initialize assignment: %w", err)
	}
	s.Logger.RecordInfo(model.KeyAssignment, assignment)
	slog.Info("assignment initialized", "assignment", assignment)
	return nil
}

// SubmitIdentity validates and stores the identity form, then logs every
// field as an info event.
func (s *Session) SubmitIdentity(id responses.Identity) (responses.Identity, error) {
	id, err := s.Responses.SubmitIdentity(id)
	if err != nil {
		return id, err
	}
	for _, kv := range id.Pairs() {
		s.Logger.RecordInfo(kv.Key, kv.Value)
	}
	return id, nil
}

// RecordAnswer stores the submitted value of a sub-question and logs the
// score it earned as "q<N>_<M>, <score>, <timestamp>".
func (s *Session) RecordAnswer(key string, value any, score float64) error {
	if _, err := s.Responses.Seed(); err != nil {
		return err
	}
	if _, err := s.Responses.Update(key, value); err != nil {
		return fmt.Errorf("record answer %s: %w", key, err)
	}
	s.Logger.RecordVariable(strconv.FormatFloat(score, 'f', -1, 64), key)
	return nil
}
