package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/examtrail/internal/decoder"
	appI18n "github.com/pavelanni/examtrail/internal/i18n"
	"github.com/pavelanni/examtrail/internal/keys"
	"github.com/pavelanni/examtrail/internal/model"
	"github.com/pavelanni/examtrail/internal/responses"
	"github.com/pavelanni/examtrail/internal/scorer"
	"github.com/pavelanni/examtrail/internal/submit"
	"github.com/pavelanni/examtrail/internal/validate"
)

func main() {
	cmd, err := rootCmd().ExecuteC()
	if err != nil {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		for _, line := range diagnose(ctx, err) {
			fmt.Fprintln(os.Stderr, line)
		}
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "examtrail",
		Short:         "Tamper-evident exam activity logging and grading",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(cmd)
			lang := viperForCmd(cmd).GetString("lang")
			if err := appI18n.Init(lang); err != nil {
				return fmt.Errorf("init i18n: %w", err)
			}
			cmd.SetContext(appI18n.WithLocalizer(cmd.Context(), appI18n.NewLocalizer(lang)))
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.String("dir", ".", "Session directory holding the responses, log and key files")
	pf.StringP("lang", "l", "en", "Message language (en, ru)")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (text, json)")

	root.AddCommand(
		keygenCmd(),
		initCmd(),
		identityCmd(),
		recordCmd(),
		answerCmd(),
		hookCmd(),
		decodeCmd(),
		validateCmd(),
		serveCmd(),
		exportCmd(),
	)
	return root
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMTRAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examtrail")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examtrail")
	v.AddConfigPath("/etc/examtrail")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func sessionPaths(v *viper.Viper) model.Paths {
	return model.DefaultPaths(v.GetString("dir"))
}

// diagnose turns a command error into the localized lines shown to the user.
func diagnose(ctx context.Context, err error) []string {
	var (
		mismatch *decoder.AssignmentMismatchError
		missing  *decoder.MissingFieldError
		lineErr  *decoder.LineError
		parseErr *scorer.ScoreParseError
		status   *submit.StatusError
		urlErr   *url.Error
	)
	contact := appI18n.T(ctx, "ContactInstructor")

	switch {
	case errors.As(err, &mismatch):
		return []string{appI18n.Td(ctx, "WrongAssignment", map[string]any{"Got": mismatch.Got, "Expected": mismatch.Expected})}
	case errors.As(err, &missing):
		return []string{appI18n.Td(ctx, "MissingStudentInfo", map[string]any{"Field": missing.Field})}
	case errors.Is(err, decoder.ErrDecrypt) && errors.As(err, &lineErr):
		return []string{appI18n.Td(ctx, "DecryptFailed", map[string]any{"Line": lineErr.Line}), contact}
	case errors.Is(err, decoder.ErrEmptyLog):
		return []string{appI18n.T(ctx, "EmptyLog")}
	case errors.Is(err, decoder.ErrNoTimestamps), errors.Is(err, decoder.ErrBadTimestamp), errors.Is(err, decoder.ErrMalformed):
		return []string{appI18n.Td(ctx, "MalformedLog", map[string]any{"Error": err.Error()}), contact}
	case errors.As(err, &parseErr):
		return []string{appI18n.Td(ctx, "InvalidScore", map[string]any{"Line": parseErr.Line, "Value": parseErr.Value}), contact}
	case errors.Is(err, responses.ErrNoSeed):
		return []string{appI18n.T(ctx, "NoSeed")}
	case errors.Is(err, responses.ErrInvalidIdentity):
		return []string{appI18n.Td(ctx, "InvalidIdentity", map[string]any{"Error": err.Error()})}
	case errors.Is(err, validate.ErrNoCredentials):
		return []string{appI18n.T(ctx, "NoCredentials")}
	case errors.Is(err, validate.ErrNoAssignment):
		return []string{appI18n.T(ctx, "NoAssignment")}
	case errors.Is(err, keys.ErrExists):
		return []string{appI18n.Td(ctx, "KeysExist", map[string]any{"Error": err.Error()})}
	case errors.As(err, &status):
		id := "UploadFailed"
		if status.Op == "login" {
			id = "LoginFailed"
		}
		return []string{appI18n.Td(ctx, id, map[string]any{"Code": status.Code, "Body": strings.TrimSpace(status.Body)}), contact}
	case errors.As(err, &urlErr):
		return []string{appI18n.Td(ctx, "NetworkFailed", map[string]any{"Error": urlErr.Err.Error()}), contact}
	default:
		return []string{err.Error()}
	}
}
