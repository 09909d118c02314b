package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pavelanni/examtrail/internal/decoder"
	appI18n "github.com/pavelanni/examtrail/internal/i18n"
	"github.com/pavelanni/examtrail/internal/keys"
	"github.com/pavelanni/examtrail/internal/model"
	"github.com/pavelanni/examtrail/internal/scorer"
	"github.com/pavelanni/examtrail/internal/validate"
)

func decodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode [log]",
		Short: "Decrypt a session log and print every event",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viperForCmd(cmd)
			p := sessionPaths(v)
			path := p.Log
			if len(args) == 1 {
				path = args[0]
			}

			pair, err := keys.LoadReceiver(p)
			if err != nil {
				return err
			}
			events, err := decoder.DecryptFile(path, pair)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if v.GetBool("json") {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(events)
			}
			for _, e := range events {
				fmt.Fprintf(out, "%4d %-6s %s\n", e.Line, e.Kind, e.Text)
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print events as a JSON array")
	return cmd
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [log]",
		Short: "Verify, score and submit a session log",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runValidate,
	}
	f := cmd.Flags()
	f.String("assignment", "", "Expected assignment name (required unless --no-submit)")
	f.String("rubric", "", "YAML rubric with the maximum points per question")
	f.StringToString("max-score", nil, "Maximum points per question, e.g. 1=10,2=5 (overrides --rubric)")
	f.Int("free-response-questions", 0, "Questions 1..N keep only their last entry per key; higher numbers are treated as free response")
	f.String("username", "", "Grading service username")
	f.String("password", "", "Grading service password (or set EXAMTRAIL_PASSWORD)")
	f.String("login-url", "", "Grading service login endpoint")
	f.String("post-url", "", "Grading service score upload endpoint")
	f.Duration("http-timeout", 0, "Per-request timeout for the grading service (0 disables)")
	f.Bool("no-submit", false, "Write the local reports without contacting the grading service")
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	var base model.Rubric
	if path := v.GetString("rubric"); path != "" {
		r, err := scorer.LoadRubric(path)
		if err != nil {
			return err
		}
		base = r
	}
	rubric, err := scorer.ParseMaxScores(base, v.GetStringMapString("max-score"))
	if err != nil {
		return err
	}

	cfg := validate.Config{
		Paths:                 sessionPaths(v),
		Assignment:            v.GetString("assignment"),
		Rubric:                rubric,
		FreeResponseQuestions: v.GetInt("free-response-questions"),
		Submit:                !v.GetBool("no-submit"),
		Credentials: model.Credentials{
			Username: v.GetString("username"),
			Password: v.GetString("password"),
		},
		LoginURL:    v.GetString("login-url"),
		PostURL:     v.GetString("post-url"),
		HTTPTimeout: v.GetDuration("http-timeout"),
	}
	if len(args) == 1 {
		cfg.LogPath = args[0]
	}

	res, err := validate.Run(ctx, cfg)
	if res != nil {
		printReport(cmd, res)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !cfg.Submit {
		fmt.Fprintln(out, appI18n.T(ctx, "SubmissionSkipped"))
		return nil
	}
	fmt.Fprintln(out, appI18n.T(ctx, "LoginSuccessful"))
	fmt.Fprintln(out, appI18n.T(ctx, "UploadSuccessful"))
	if res.Response != "" {
		fmt.Fprintln(out, res.Response)
	}
	return nil
}

func printReport(cmd *cobra.Command, res *validate.Result) {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	score, possible := res.Report.Total()
	fmt.Fprintln(out, appI18n.Tp(ctx, "QuestionsScored", len(res.Report.Tests), nil))
	fmt.Fprintln(out, appI18n.Td(ctx, "ScoreSummary", map[string]any{"Score": score, "Possible": possible}))
	if n := len(res.Session.Suspicious); n > 0 {
		fmt.Fprintln(out, appI18n.Tp(ctx, "SuspiciousCode", n, nil))
	}
	if n := len(res.Report.Warnings); n > 0 {
		fmt.Fprintln(out, appI18n.Tp(ctx, "RubricWarnings", n, nil))
	}
}
