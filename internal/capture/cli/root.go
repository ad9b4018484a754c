// Package cli implements the capture agent command line:
//
//	capture page <url>          render a page, deliver it or queue it
//	capture file <path> --url   same, from a saved HTML file
//	capture queue list|replay|drop <index>
//	capture watch --every 5m    replay the queue on a schedule
//
// Flags can also be set through CAPTURE_* environment variables.
package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/boddenberg/charter-leads-bfa/internal/capture/intake"
	"github.com/boddenberg/charter-leads-bfa/internal/capture/queue"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/observability"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/resilience"
)

// app holds what every subcommand needs. Built in PersistentPreRunE.
type app struct {
	v      *viper.Viper
	out    io.Writer
	logger *zap.Logger
	queue  *queue.Queue
	closer func() error
}

// NewRootCommand builds the capture CLI.
func NewRootCommand(version string) *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "capture",
		Short:         "Capture charter leads from web pages into the CRM",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.closer != nil {
				return a.closer()
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("server", "http://localhost:8080", "BFA base URL")
	flags.String("token", "", "intake token or Supabase access token")
	flags.String("user", "", "CRM user id the leads belong to")
	flags.String("queue", defaultQueuePath(), "SQLite file for the offline queue")
	flags.String("redis-url", "", "use a Redis queue instead of SQLite (redis://host:6379/0)")
	flags.Int("max-items", 500, "queue bound, 0 for unbounded")
	flags.Int("attempts", 3, "delivery attempts per item")
	flags.Duration("backoff", time.Second, "initial retry backoff")
	flags.Duration("timeout", 30*time.Second, "HTTP and page render timeout")
	flags.String("log-level", "info", "debug|info|warn|error")

	_ = a.v.BindPFlags(flags)
	a.v.SetEnvPrefix("CAPTURE")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(
		newPageCommand(a),
		newFileCommand(a),
		newQueueCommand(a),
		newWatchCommand(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	a.out = cmd.OutOrStdout()
	a.logger = observability.NewLogger(a.v.GetString("log-level"))

	var (
		store  queue.Store
		closer func() error
	)
	if url := a.v.GetString("redis-url"); url != "" {
		rs, err := queue.NewRedisStore(url)
		if err != nil {
			return err
		}
		store, closer = rs, rs.Close
	} else {
		path := a.v.GetString("queue")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create queue dir: %w", err)
		}
		ss, err := queue.OpenSQLite(path)
		if err != nil {
			return err
		}
		store, closer = ss, ss.Close
	}

	attempts := a.v.GetInt("attempts")
	if attempts < 1 {
		attempts = 1
	}
	timeout := a.v.GetDuration("timeout")

	sender := intake.NewClient(&http.Client{Timeout: timeout}, a.v.GetString("server"), a.v.GetString("token"))
	a.queue = queue.New(store, sender, queue.Options{
		MaxItems: a.v.GetInt("max-items"),
		Retry: resilience.Config{
			MaxRetries:     attempts - 1,
			InitialBackoff: a.v.GetDuration("backoff"),
			Jitter:         true,
		},
	}, a.logger)

	a.closer = func() error {
		_ = a.logger.Sync()
		return closer()
	}
	return nil
}

func defaultQueuePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "charter-capture", "queue.db")
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// commandContext returns the command context or Background.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
