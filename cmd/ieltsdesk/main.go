package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/ieltsdesk/ieltsdesk/internal/ai"
	"github.com/ieltsdesk/ieltsdesk/internal/exam"
	"github.com/ieltsdesk/ieltsdesk/internal/handler"
	appI18n "github.com/ieltsdesk/ieltsdesk/internal/i18n"
	"github.com/ieltsdesk/ieltsdesk/internal/model"
	"github.com/ieltsdesk/ieltsdesk/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ieltsdesk",
		Short: "IELTS mock exam server with AI-assisted writing evaluation",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `ieltsdesk --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP exam server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "ieltsdesk.db", "SQLite database path")
	f.StringSliceP("sections", "s", nil, "Paths to section JSON files (repeatable)")
	f.String("ai-endpoint", "https://generativelanguage.googleapis.com/v1beta", "Generation API base URL")
	f.StringSlice("ai-models", []string{"gemini-2.0-flash", "gemini-1.5-flash"}, "Model fallback ladder, most preferred first")
	f.StringSlice("ai-keys", nil, "API key pool rotated across calls (or set IELTSDESK_AI_KEYS)")
	f.Duration("ai-backoff", 3*time.Second, "Wait after a rate-limited call before rotating credentials")
	f.Duration("ai-task-delay", 2*time.Second, "Delay between per-task evaluation calls")
	f.Duration("ai-timeout", 90*time.Second, "Timeout for a single provider call")
	f.StringP("lang", "l", "en", "Response language (en, ru)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("admin-password", "", "Initial admin password (or set IELTSDESK_ADMIN_PASSWORD)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export exam results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "ieltsdesk.db", "SQLite database path")
	f.String("exam-id", "", "Exam identifier for output (defaults to stored metadata)")
	f.String("subject", "", "Subject name for output (defaults to stored metadata)")
	f.String("date", "", "Exam date in YYYY-MM-DD format (defaults to stored metadata)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
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

	v.SetEnvPrefix("IELTSDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("ieltsdesk")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/ieltsdesk")
	v.AddConfigPath("/etc/ieltsdesk")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Seed default admin user if no users exist.
	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	if err := loadSections(db, v.GetStringSlice("sections")); err != nil {
		return fmt.Errorf("load sections: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// Writing evaluation is optional: without keys the server still runs and
	// records writing submissions unevaluated.
	var evaluator exam.Evaluator
	keys := v.GetStringSlice("ai-keys")
	if len(keys) > 0 {
		e, err := ai.New(ai.Config{
			Endpoint:         v.GetString("ai-endpoint"),
			Models:           v.GetStringSlice("ai-models"),
			Keys:             keys,
			RateLimitBackoff: v.GetDuration("ai-backoff"),
			TaskDelay:        v.GetDuration("ai-task-delay"),
			Timeout:          v.GetDuration("ai-timeout"),
		})
		if err != nil {
			return fmt.Errorf("create evaluator: %w", err)
		}
		evaluator = e
		slog.Info("writing evaluator configured",
			"endpoint", v.GetString("ai-endpoint"),
			"models", v.GetStringSlice("ai-models"),
			"keys", len(keys))
	} else {
		slog.Warn("no AI keys configured, writing sections will not be auto-evaluated")
	}

	svc := exam.New(db, evaluator)
	h := handler.New(db, svc, handler.Config{
		SecureCookies: v.GetBool("secure-cookies"),
	})

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"lang", lang,
		"sections", v.GetStringSlice("sections"),
	)
	return http.ListenAndServe(addr, r)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	results, err := db.ExportAllResults()
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}

	info, err := db.GetExamInfo()
	if err != nil {
		return fmt.Errorf("read exam metadata: %w", err)
	}
	if s := v.GetString("exam-id"); s != "" {
		info.ExamID = s
	}
	if s := v.GetString("subject"); s != "" {
		info.Subject = s
	}
	if s := v.GetString("date"); s != "" {
		info.Date = s
	}
	// Remember overrides so later exports default to them.
	if err := db.SetExamInfo(info); err != nil {
		slog.Warn("failed to store exam metadata", "error", err)
	}

	export := model.ExamExport{
		ExamID:     info.ExamID,
		Subject:    info.Subject,
		Date:       info.Date,
		NumResults: len(results),
		Results:    results,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

func loadSections(db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}

		if storedHash == hash {
			slog.Info("sections file unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Warn("sections file changed since last import, skipping to avoid breaking existing attempts",
				"path", path)
			continue
		}

		var imports []model.SectionImport
		if err := json.Unmarshal(data, &imports); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		for _, si := range imports {
			_, err := db.InsertSection(model.Section{
				Name:            si.Name,
				Type:            si.Type,
				DurationMinutes: si.DurationMinutes,
				Questions:       si.Questions,
			})
			if err != nil {
				return fmt.Errorf("insert section from %s: %w", path, err)
			}
		}

		if err := db.SetImportedFileHash(path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported sections", "path", path, "count", len(imports))
	}

	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or IELTSDESK_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
