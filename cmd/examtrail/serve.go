package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/examtrail/internal/answerkey"
	"github.com/pavelanni/examtrail/internal/handler"
	appI18n "github.com/pavelanni/examtrail/internal/i18n"
	"github.com/pavelanni/examtrail/internal/llm"
	"github.com/pavelanni/examtrail/internal/llm/prompts"
	"github.com/pavelanni/examtrail/internal/model"
	"github.com/pavelanni/examtrail/internal/store"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the development grading server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "examtrail.db", "SQLite database path")
	f.String("answer-key", "", "YAML answer key for the live scorer (reloaded on change)")
	f.String("llm-url", "", "OpenAI-compatible API base URL for free-response grading")
	f.String("llm-key", "ollama", "API key for the LLM endpoint")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("prompt-variant", string(prompts.Standard), "Default grading prompt variant (strict, standard, lenient)")
	f.String("user", "grader", "Account to create or refresh on startup")
	f.String("password", "", "Password for --user (or set EXAMTRAIL_PASSWORD)")
	f.String("admin-user", "", "Account allowed to use the /admin routes")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the latest upload per student as JSON",
		Args:  cobra.NoArgs,
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "examtrail.db", "SQLite database path")
	f.String("assignment", "", "Assignment to export (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	_ = cmd.MarkFlagRequired("assignment")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedUser(db, v.GetString("user"), v.GetString("password")); err != nil {
		return fmt.Errorf("seed user: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var keyHolder *answerkey.Holder
	if path := v.GetString("answer-key"); path != "" {
		recordKey := func(k *answerkey.Key) {
			changed, err := db.RecordAnswerKey(path, k.Hash)
			if err != nil {
				slog.Error("record answer key", "error", err)
				return
			}
			if changed {
				slog.Warn("answer key changed since the last load", "path", path, "sha256", k.Hash)
			}
		}
		keyHolder, err = answerkey.NewHolder(path, recordKey)
		if err != nil {
			return fmt.Errorf("load answer key: %w", err)
		}
		recordKey(keyHolder.Key())
		go func() {
			if err := keyHolder.Watch(ctx); err != nil {
				slog.Error("answer key watcher stopped", "error", err)
			}
		}()
	}

	var grader answerkey.FreeResponseGrader
	if url := v.GetString("llm-url"); url != "" {
		variant, err := prompts.ParseVariant(v.GetString("prompt-variant"))
		if err != nil {
			slog.Warn("invalid prompt-variant, using standard", "error", err)
			variant = prompts.Standard
		}
		client := llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"), variant)
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := client.Ping(pingCtx); err != nil {
			slog.Warn("LLM health check failed; free-response grading may fail", "error", err)
		} else {
			slog.Info("LLM endpoint OK", "url", url, "model", v.GetString("llm-model"))
		}
		cancel()
		grader = client
	}

	lang := v.GetString("lang")
	h := handler.New(db, keyHolder, grader, handler.Config{AdminUser: v.GetString("admin-user")})

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	srv := &http.Server{
		Addr:              v.GetString("addr"),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	slog.Info("starting server",
		"addr", srv.Addr,
		"db", v.GetString("db"),
		"answer_key", v.GetString("answer-key"),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
	)

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// seedUser creates the account or refreshes its password, so restarting with
// a new password always takes effect.
func seedUser(db *store.Store, username, password string) error {
	if password == "" {
		count, err := db.UserCount()
		if err != nil {
			return err
		}
		if count == 0 {
			return errors.New("a password is required for the first account: set --password or EXAMTRAIL_PASSWORD")
		}
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	existing, err := db.GetUserByUsername(username)
	if err != nil {
		return err
	}
	if existing != nil {
		return db.SetPassword(username, string(hash))
	}
	if _, err := db.CreateUser(model.User{Username: username, PasswordHash: string(hash), Active: true}); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	slog.Info("created user", "username", username)
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	results, err := db.ExportAssignment(v.GetString("assignment"))
	if err != nil {
		return fmt.Errorf("export assignment: %w", err)
	}

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)
	return nil
}
