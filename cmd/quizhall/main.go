package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/quizhall/internal/auth"
	"github.com/pavelanni/quizhall/internal/cache"
	"github.com/pavelanni/quizhall/internal/docstore"
	"github.com/pavelanni/quizhall/internal/handler"
	appI18n "github.com/pavelanni/quizhall/internal/i18n"
	"github.com/pavelanni/quizhall/internal/llm"
	"github.com/pavelanni/quizhall/internal/llm/prompts"
	"github.com/pavelanni/quizhall/internal/model"
	"github.com/pavelanni/quizhall/internal/quiz"
	"github.com/pavelanni/quizhall/internal/store"
)

// sessionCleanupInterval is how often expired login sessions are purged.
const sessionCleanupInterval = time.Hour

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "quizhall",
		Short: "Exam-taking service with scoring, badges and a leaderboard",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `quizhall --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addStorageFlags(f *pflag.FlagSet) {
	f.String("db-driver", string(store.DriverSQLite), "Storage backend (sqlite, postgres, mongo)")
	f.String("db", "quizhall.db", "SQLite path, postgres DSN or MongoDB URI")
	f.String("mongo-database", docstore.DefaultDatabase, "MongoDB database name")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	addStorageFlags(f)
	f.String("redis-url", "", "Redis URL for the leaderboard (empty = use the database)")
	f.String("jwt-secret", "", "Secret for signing API tokens (random per process if empty)")
	f.String("admin-password", "", "Initial admin password (or set QUIZHALL_ADMIN_PASSWORD)")
	f.StringSliceP("questions", "q", nil, "Question JSON files to import at startup (repeatable)")
	f.String("category", "General", "Category for questions imported at startup")
	f.StringP("lang", "l", "en", "Default language (en, ru)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.Bool("allow-signup", false, "Allow self-registration of learner accounts")
	f.StringSlice("cors-origins", nil, "Allowed CORS origins (repeatable)")
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty disables explanation drafting)")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("prompt-variant", string(prompts.PromptBrief), "Explanation prompt variant (brief, detailed)")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import questions from JSON files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	f := cmd.Flags()
	addStorageFlags(f)
	f.String("category", "General", "Category to attach the questions to (created if missing)")
	f.Bool("force", false, "Import even if the same file content was imported before")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "export questions|attempts",
		Short:     "Export the question bank or all attempts as JSON",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"questions", "attempts"},
		RunE:      runExport,
	}
	f := cmd.Flags()
	addStorageFlags(f)
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
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

	v.SetEnvPrefix("QUIZHALL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("quizhall")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/quizhall")
	v.AddConfigPath("/etc/quizhall")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// openRepo opens the storage backend selected by --db-driver.
func openRepo(ctx context.Context, v *viper.Viper) (quiz.Repository, error) {
	driver := strings.ToLower(v.GetString("db-driver"))
	dsn := v.GetString("db")
	switch driver {
	case "mongo", "mongodb":
		s, err := docstore.New(ctx, dsn, v.GetString("mongo-database"))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := store.New(store.Driver(driver), dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Open database.
	repo, err := openRepo(ctx, v)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()

	// Seed default admin user if no users exist.
	if err := seedAdmin(ctx, repo, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	if files := v.GetStringSlice("questions"); len(files) > 0 {
		if err := importFiles(ctx, repo, files, v.GetString("category"), false); err != nil {
			return fmt.Errorf("load questions: %w", err)
		}
	}

	// Initialize i18n.
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	var opts []quiz.Option
	if url := v.GetString("redis-url"); url != "" {
		client, err := cache.Connect(ctx, url)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		board := cache.NewLeaderboard(client, cache.DefaultKey)
		if err := board.Reset(ctx); err != nil {
			return fmt.Errorf("reset leaderboard: %w", err)
		}
		opts = append(opts, quiz.WithRanker(board))
	}
	svc := quiz.NewService(repo, opts...)
	if err := svc.WarmRanker(ctx); err != nil {
		return fmt.Errorf("warm leaderboard: %w", err)
	}

	var explainer handler.Explainer
	if url := v.GetString("llm-url"); url != "" {
		variant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
		if !prompts.IsValidVariant(variant) {
			slog.Warn("invalid prompt-variant, using brief", "variant", variant)
			variant = string(prompts.PromptBrief)
		}
		client, err := llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"), variant)
		if err != nil {
			return fmt.Errorf("create LLM client: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = client.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", url, "model", v.GetString("llm-model"))
		explainer = client
	}

	secret := v.GetString("jwt-secret")
	if secret == "" {
		secret = randomSecret()
		slog.Warn("no jwt-secret configured, tokens will not survive a restart")
	}

	h := handler.New(svc, auth.NewIssuer(secret), explainer, handler.Config{
		SecureCookies:  v.GetBool("secure-cookies"),
		AllowSignup:    v.GetBool("allow-signup"),
		AllowedOrigins: v.GetStringSlice("cors-origins"),
	})

	go cleanupSessions(ctx, repo)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"db_driver", v.GetString("db-driver"),
			"redis", v.GetString("redis-url") != "",
			"llm", explainer != nil,
			"lang", lang,
			"allow_signup", v.GetBool("allow-signup"),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func cleanupSessions(ctx context.Context, repo quiz.AuthSessionStore) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := repo.CleanupExpiredSessions(ctx); err != nil {
				slog.Warn("session cleanup failed", "error", err)
			}
		}
	}
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	repo, err := openRepo(ctx, v)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()

	return importFiles(ctx, repo, args, v.GetString("category"), v.GetBool("force"))
}

func importFiles(ctx context.Context, repo quiz.Repository, paths []string, categoryName string, force bool) error {
	category, err := quiz.CategoryByName(ctx, repo, categoryName)
	if err != nil {
		return err
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		report, err := quiz.ImportOnce(ctx, repo, data, category, force)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		if report.AlreadyImported {
			slog.Info("questions file unchanged, skipping", "path", path)
			continue
		}
		slog.Info("imported questions", "path", path, "category", category.Name,
			"count", report.Imported, "skipped", report.Skipped)
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	repo, err := openRepo(ctx, v)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()

	var data []byte
	switch args[0] {
	case "questions":
		data, err = quiz.ExportQuestions(ctx, repo)
		if err != nil {
			return fmt.Errorf("export questions: %w", err)
		}
	case "attempts":
		export, err := quiz.NewService(repo).ExportAttempts(ctx)
		if err != nil {
			return fmt.Errorf("export attempts: %w", err)
		}
		data, err = json.MarshalIndent(export, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
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

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

func seedAdmin(ctx context.Context, repo quiz.UserStore, password string) error {
	count, err := repo.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return errors.New("admin password is required: set --admin-password flag or QUIZHALL_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	err = repo.CreateUser(ctx, &model.User{
		Username:     "admin",
		Name:         "Administrator",
		PasswordHash: string(hash),
		IsAdmin:      true,
		Active:       true,
		Badges:       []string{},
		Attempts:     []string{},
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
