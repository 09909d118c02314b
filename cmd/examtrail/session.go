package main

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/spf13/cobra"

	appI18n "github.com/pavelanni/examtrail/internal/i18n"
	"github.com/pavelanni/examtrail/internal/keys"
	"github.com/pavelanni/examtrail/internal/responses"
	"github.com/pavelanni/examtrail/internal/telemetry"
)

var answerKeyPattern = regexp.MustCompile(`^q\d+_\d+$`)

func keygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the server and client keypairs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := viperForCmd(cmd)
			p := sessionPaths(v)
			if err := keys.Generate(p, v.GetBool("force")); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), appI18n.Td(cmd.Context(), "KeysGenerated", map[string]any{"Dir": p.Dir}))
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "Replace existing key files")
	return cmd
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <assignment>",
		Short: "Start an exam session for an assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := sessionPaths(viperForCmd(cmd))
			s := telemetry.NewSession(p, nil)
			if _, err := s.Responses.Ensure(); err != nil {
				return err
			}
			if err := s.Initialize(args[0]); err != nil {
				return err
			}
			warnDropped(s)
			fmt.Fprintln(cmd.OutOrStdout(), appI18n.Td(cmd.Context(), "SessionInitialized",
				map[string]any{"Assignment": args[0], "Dir": p.Dir}))
			return nil
		},
	}
}

func identityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Submit the student information form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := viperForCmd(cmd)
			s := telemetry.NewSession(sessionPaths(v), nil)
			id, err := s.SubmitIdentity(responses.Identity{
				FirstName:   v.GetString("first-name"),
				LastName:    v.GetString("last-name"),
				DrexelID:    v.GetString("drexel-id"),
				DrexelEmail: v.GetString("drexel-email"),
			})
			if err != nil {
				return err
			}
			warnDropped(s)
			slog.Debug("identity stored", "email", id.DrexelEmail, "seed", id.Seed)
			fmt.Fprintln(cmd.OutOrStdout(), appI18n.T(cmd.Context(), "IdentitySaved"))
			return nil
		},
	}
	f := cmd.Flags()
	f.String("first-name", "", "First name")
	f.String("last-name", "", "Last name")
	f.String("drexel-id", "", "Drexel ID (the e-mail local part)")
	f.String("drexel-email", "", "Drexel e-mail address")
	return cmd
}

func recordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "record <label> <value>",
		Short: "Append a labelled value to the encrypted log",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			l := telemetry.NewLogger(sessionPaths(viperForCmd(cmd)))
			l.RecordVariable(args[1], args[0])
			if l.Dropped() > 0 {
				slog.Warn("event was not logged", "label", args[0])
			}
			return nil
		},
	}
}

func answerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "answer <qN_M> <score>",
		Short: "Store an answer and log the score it earned",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !answerKeyPattern.MatchString(key) {
				return fmt.Errorf("answer key %q must look like q<N>_<M>", key)
			}
			score, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("score %q: %w", args[1], err)
			}

			v := viperForCmd(cmd)
			s := telemetry.NewSession(sessionPaths(v), nil)
			var value any = score
			if cmd.Flags().Changed("value") {
				value = v.GetString("value")
			}
			if err := s.RecordAnswer(key, value, score); err != nil {
				return err
			}
			warnDropped(s)
			fmt.Fprintln(cmd.OutOrStdout(), appI18n.Td(cmd.Context(), "AnswerRecorded", map[string]any{"Key": key}))
			return nil
		},
	}
	cmd.Flags().String("value", "", "Submitted answer to store (defaults to the score)")
	return cmd
}

// hookCmd runs the pre-cell hook on source read from stdin. It never fails
// so that a notebook cell is never blocked by logging.
func hookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hook",
		Short: "Log a cell execution read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				slog.Warn("read cell source", "error", err)
				return nil
			}
			s := telemetry.NewSession(sessionPaths(viperForCmd(cmd)), nil)
			s.Hooks.Register(telemetry.HookName, s.Logger.RecordCellExecution)
			s.Hooks.PreRunCell(string(src))
			return nil
		},
	}
}

func warnDropped(s *telemetry.Session) {
	if n := s.Logger.Dropped(); n > 0 {
		slog.Warn("some events were not logged", "dropped", n)
	}
}
