package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/digitorus/aissign/internal/api"
	"github.com/digitorus/aissign/internal/api/router"
	"github.com/digitorus/aissign/internal/config"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP signing API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			s := api.NewServer(cfg, cfg.Logger())
			if err := s.InitComponents(cmd.Context()); err != nil {
				return err
			}
			router.Init(s)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, s, shutdownTimeout)
		},
	}
}

// run serves until ctx is done or the server fails, then shuts down.
func run(ctx context.Context, s *api.Server, timeout time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if errs := s.Shutdown(sctx); len(errs) > 0 {
			return errs[0]
		}
		return nil
	})

	return g.Wait()
}
