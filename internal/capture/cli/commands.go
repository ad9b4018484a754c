package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boddenberg/charter-leads-bfa/internal/capture/queue"
	"github.com/boddenberg/charter-leads-bfa/internal/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/browser"
)

// ============================================================
// capture page / capture file
// ============================================================

func newPageCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "page <url>",
		Short: "Render a page in headless Chrome and send it to the CRM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b := browser.NewLocal(a.v.GetDuration("timeout"), a.logger)
			defer b.Close()

			page, err := b.Capture(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			return a.submit(cmd, page)
		},
	}
}

func newFileCommand(a *app) *cobra.Command {
	var sourceURL string
	cmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Send a saved HTML page to the CRM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if sourceURL == "" {
				sourceURL = "file://" + args[0]
			}
			page, err := browser.FromHTML(sourceURL, string(raw))
			if err != nil {
				return err
			}
			return a.submit(cmd, page)
		},
	}
	cmd.Flags().StringVar(&sourceURL, "url", "", "original URL of the page")
	return cmd
}

func (a *app) submit(cmd *cobra.Command, page *domain.PageData) error {
	res, err := a.queue.Submit(commandContext(cmd), *page, a.v.GetString("user"))
	if err != nil {
		return err
	}
	if res.Delivered {
		a.printf("lead created: %s\n", res.LeadID)
		return nil
	}
	a.printf("delivery failed (%v); queued as %s\n", res.Err, res.Queued.ID)
	if queue.IsAuthError(res.Err) {
		return fmt.Errorf("authentication failed; check --token")
	}
	return nil
}

// ============================================================
// capture queue ...
// ============================================================

func newQueueCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and replay the offline queue",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List queued captures, oldest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := a.queue.List(commandContext(cmd))
			if err != nil {
				return err
			}
			if len(items) == 0 {
				a.printf("queue is empty\n")
				return nil
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tCAPTURED\tATTEMPTS\tURL\tLAST ERROR")
			for i, it := range items {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n",
					i, it.Timestamp.Local().Format(time.DateTime), it.Attempts, it.PageData.URL, it.LastError)
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "replay",
		Short: "Try to deliver every queued capture now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.queue.Replay(commandContext(cmd))
			if err != nil {
				return err
			}
			a.printf("delivered %d, failed %d, remaining %d\n", res.Delivered, res.Failed, res.Remaining)
			if res.Aborted {
				return fmt.Errorf("replay aborted: authentication failed")
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "drop <index>",
		Short: "Remove the capture at a queue position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("index must be a number: %w", err)
			}
			it, err := a.queue.Dequeue(commandContext(cmd), idx)
			if err != nil {
				return err
			}
			a.printf("dropped %s (%s)\n", it.ID, it.PageData.URL)
			return nil
		},
	})
	return cmd
}

// ============================================================
// capture watch
// ============================================================

func newWatchCommand(a *app) *cobra.Command {
	var every time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Replay the queue periodically until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := gocron.NewScheduler(time.Local)
			s.SingletonModeAll()
			_, err := s.Every(every).Do(func() {
				res, err := a.queue.Replay(ctx)
				if err != nil {
					a.logger.Error("scheduled replay failed", zap.Error(err))
					return
				}
				if res.Aborted {
					a.logger.Warn("scheduled replay aborted on auth failure")
				}
			})
			if err != nil {
				return fmt.Errorf("schedule replay: %w", err)
			}

			a.logger.Info("watching capture queue", zap.Duration("every", every))
			s.StartAsync()
			<-ctx.Done()
			s.Stop()
			return nil
		},
	}
	cmd.Flags().DurationVar(&every, "every", 5*time.Minute, "replay interval")
	return cmd
}
