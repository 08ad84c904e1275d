package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/yapper/internal/profile"
	"github.com/hrygo/yapper/server"
	"github.com/hrygo/yapper/server/auth"
	embeddingrunner "github.com/hrygo/yapper/server/runner/embedding"
	"github.com/hrygo/yapper/store"
	"github.com/hrygo/yapper/store/db"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

var (
	rootCmd = &cobra.Command{
		Use:   "yapper",
		Short: `A journaling backend with semantic search over your own entries.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	backfillCmd = &cobra.Command{
		Use:   "backfill",
		Short: "Embed every entry that is not searchable yet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ownerID, err := cmd.Flags().GetString("owner")
			if err != nil {
				return err
			}
			return runBackfill(cmd.Context(), ownerID)
		},
	}

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an owner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ownerID, err := cmd.Flags().GetString("owner")
			if err != nil {
				return err
			}
			ttl, err := cmd.Flags().GetDuration("ttl")
			if err != nil {
				return err
			}
			return runToken(cmd, ownerID, ttl)
		},
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 8081)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (sqlite or postgres)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name (aka. DSN)")

	backfillCmd.Flags().String("owner", "", "only backfill this owner's entries (default: all owners)")
	tokenCmd.Flags().String("owner", "", "owner id written into the token subject")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")

	for _, key := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("yapper")
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd, backfillCmd, tokenCmd)
}

// loadProfile merges .env, YAPPER_* variables and flags into a validated profile.
func loadProfile() (*profile.Profile, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	p := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Addr:    viper.GetString("addr"),
		Port:    viper.GetInt("port"),
		Data:    viper.GetString("data"),
		Driver:  viper.GetString("driver"),
		DSN:     viper.GetString("dsn"),
		Version: version,
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	setupLogger(p)
	return p, nil
}

func setupLogger(p *profile.Profile) {
	var handler slog.Handler
	if p.IsDev() {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))
}

func openStore(ctx context.Context, p *profile.Profile) (*store.Store, error) {
	driver, err := db.NewDBDriver(p)
	if err != nil {
		return nil, err
	}
	s := store.New(driver, p)
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func runServe(ctx context.Context) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s, err := openStore(ctx, p)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		return err
	}

	services, err := server.NewAIServices(p)
	switch {
	case errors.Is(err, server.ErrAIDisabled):
		slog.Info("AI disabled; search, chat and backfill are unavailable")
	case err != nil:
		slog.Warn("AI services unavailable", "error", err)
	}

	srv, err := server.NewServer(p, s, services)
	if err != nil {
		_ = s.Close()
		return err
	}
	if err := srv.Start(ctx); err != nil {
		_ = s.Close()
		return err
	}
	printGreetings(p)

	<-ctx.Done()
	srv.Shutdown(context.Background())
	return nil
}

func runBackfill(ctx context.Context, ownerID string) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}

	s, err := openStore(ctx, p)
	if err != nil {
		return err
	}
	defer s.Close()

	services, err := server.NewAIServices(p)
	if errors.Is(err, server.ErrAIDisabled) {
		return errors.Wrap(err, "set an embedding provider key to backfill")
	}
	if err != nil {
		return err
	}

	runner := embeddingrunner.NewRunner(s, services.Embedding, services.Normalizer, 0)
	result, err := runner.Backfill(ctx, ownerID)
	if err != nil {
		return err
	}
	fmt.Printf("attempted=%d succeeded=%d failed=%d skipped=%d\n", result.Attempted, result.Succeeded, result.Failed, result.Skipped)
	return nil
}

func runToken(cmd *cobra.Command, ownerID string, ttl time.Duration) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	if p.Secret == "" {
		return fmt.Errorf("YAPPER_SECRET must be set to issue tokens")
	}
	token, err := auth.GenerateToken(ownerID, []byte(p.Secret), ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("Yapper %s started successfully!\n", p.Version)
	if p.IsDev() {
		fmt.Printf("Running in %s mode with %s\n", p.Mode, p.Driver)
	}
	addr := p.Addr
	if addr == "" {
		addr = "localhost"
	}
	fmt.Printf("Listening on http://%s:%d\n", addr, p.Port)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
