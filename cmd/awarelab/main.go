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
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/awarelab/internal/authoring"
	"github.com/pavelanni/awarelab/internal/cache"
	"github.com/pavelanni/awarelab/internal/handler"
	appI18n "github.com/pavelanni/awarelab/internal/i18n"
	"github.com/pavelanni/awarelab/internal/labfile"
	"github.com/pavelanni/awarelab/internal/model"
	"github.com/pavelanni/awarelab/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "awarelab",
		Short: "Security awareness labs: simulations, scoring and progress",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), validateCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `awarelab --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addDBFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db-driver", string(store.DriverSQLite), "Database driver (sqlite, postgres)")
	f.String("db", "awarelab.db", "SQLite path or Postgres DSN")
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP lab server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringSliceP("labs", "L", nil, "Lab definition files to import on startup, JSON or YAML (repeatable)")
	f.String("admin-password", "", "Initial admin password (or set AWARELAB_ADMIN_PASSWORD)")
	f.StringP("lang", "l", "en", "Default UI language (en, ru)")
	f.String("redis-url", "", "Redis URL for parking in-flight attempts (default: in memory)")
	f.Duration("attempt-ttl", 2*time.Hour, "How long an idle attempt is kept")
	f.Duration("autosave-interval", 30*time.Second, "Notes autosave period for content labs (0 disables)")
	f.Duration("idle-timeout", 15*time.Minute, "Pause a lab's timer after this long without requests (0 disables)")
	f.StringSlice("cors-origins", nil, "Allowed CORS origins (repeatable)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	addDBFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Validate and import lab definition files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.Bool("force", false, "Re-import files even if unchanged")
	f.String("catalog-name", "", "Catalog name recorded with the import")
	f.String("catalog-version", "", "Catalog version recorded with the import")
	addDBFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [files...]",
		Short: "Check lab definition files without importing them",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runValidate,
	}
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export lab progress as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addDBFlags(cmd)
	addLogFlags(cmd)
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

	v.SetEnvPrefix("AWARELAB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("awarelab")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/awarelab")
	v.AddConfigPath("/etc/awarelab")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func openStore(ctx context.Context, v *viper.Viper) (*store.Store, error) {
	db, err := store.New(ctx, store.Driver(v.GetString("db-driver")), v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func newAttemptCache(ctx context.Context, v *viper.Viper) (cache.AttemptCache, func(), error) {
	ttl := v.GetDuration("attempt-ttl")
	url := v.GetString("redis-url")
	if url == "" {
		return cache.NewMemoryCache(ttl), func() {}, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("connected to redis", "addr", opts.Addr)
	return cache.NewRedisCache(rdb, ttl), func() { rdb.Close() }, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	// Seed default admin user if no users exist.
	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	if err := importFiles(ctx, db, v.GetStringSlice("labs"), false); err != nil {
		return fmt.Errorf("load labs: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	attempts, closeCache, err := newAttemptCache(ctx, v)
	if err != nil {
		return err
	}
	defer closeCache()

	cfg := model.ServerConfig{
		SecureCookies:    v.GetBool("secure-cookies"),
		AttemptTTL:       v.GetDuration("attempt-ttl"),
		AutosaveInterval: v.GetDuration("autosave-interval"),
		IdleTimeout:      v.GetDuration("idle-timeout"),
		CORSOrigins:      v.GetStringSlice("cors-origins"),
	}
	h := handler.New(db, attempts, cfg)
	defer h.Close()

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: h.Router()}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"db_driver", v.GetString("db-driver"),
			"lang", lang,
			"attempt_ttl", cfg.AttemptTTL,
			"autosave_interval", cfg.AutosaveInterval,
			"idle_timeout", cfg.IdleTimeout,
			"redis", v.GetString("redis-url") != "",
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := importFiles(ctx, db, args, v.GetBool("force")); err != nil {
		return err
	}
	if name := v.GetString("catalog-name"); name != "" {
		info := model.CatalogInfo{Name: name, Version: v.GetString("catalog-version"), ImportedAt: time.Now()}
		if err := db.SetCatalogInfo(info); err != nil {
			return fmt.Errorf("record catalog info: %w", err)
		}
	}
	return nil
}

// importFiles validates and saves every lab in paths. Unchanged files are
// skipped unless force is set.
func importFiles(ctx context.Context, db *store.Store, paths []string, force bool) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		res, err := labfile.Import(ctx, db, path, data, force)
		if ie, ok := labfile.AsInvalid(err); ok {
			for id, rep := range ie.Reports {
				logIssues(path, id, rep)
			}
		}
		if err != nil {
			return err
		}
		for id, warnings := range res.Warnings {
			logIssues(path, id, authoring.Report{Warnings: warnings})
		}
	}
	return nil
}

func logIssues(path, labID string, rep authoring.Report) {
	for _, is := range rep.Errors {
		slog.Error("invalid lab", "file", path, "lab", labID, "field", is.Field, "error", is.Message)
	}
	for _, is := range rep.Warnings {
		slog.Warn("lab warning", "file", path, "lab", labID, "field", is.Field, "warning", is.Message)
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	failed := 0
	for _, path := range args {
		f, err := labfile.Load(path)
		if err != nil {
			slog.Error("cannot load lab file", "file", path, "error", err)
			failed++
			continue
		}
		for _, lab := range f.Labs {
			rep := authoring.Validate(lab)
			logIssues(path, lab.ID, rep)
			if !rep.OK() {
				failed++
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s ok (%d warnings)\n", path, lab.ID, len(rep.Warnings))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d lab(s) failed validation: %w", failed, authoring.ErrInvalid)
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	results, err := db.ExportAllProgress(ctx)
	if err != nil {
		return fmt.Errorf("export progress: %w", err)
	}
	catalog, err := db.GetCatalogInfo()
	if err != nil {
		return fmt.Errorf("read catalog info: %w", err)
	}
	numLabs, err := db.LabCount(ctx)
	if err != nil {
		return fmt.Errorf("count labs: %w", err)
	}
	if results == nil {
		results = []model.StudentResult{}
	}

	export := model.ProgressExport{
		Catalog:    catalog,
		ExportedAt: time.Now().UTC(),
		NumLabs:    numLabs,
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

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or AWARELAB_ADMIN_PASSWORD env var")
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
