package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/linesmerrill/evchat/api/handlers"
	"github.com/linesmerrill/evchat/api/scheduler"
	"github.com/linesmerrill/evchat/config"
)

// ServeFlags configure the local agent server
type ServeFlags struct {
	Agent  *AgentFlags
	Listen string
}

// NewServeFlags returns the defaults
func NewServeFlags() *ServeFlags {
	return &ServeFlags{Agent: NewAgentFlags()}
}

// BindFlags registers the flags on fs
func (f *ServeFlags) BindFlags(fs *pflag.FlagSet) {
	f.Agent.BindFlags(fs)
	fs.StringVar(&f.Listen, "listen", f.Listen, "listen address, overrides PORT (e.g. :8080)")
}

func init() {
	f := NewServeFlags()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat agent with its local HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), config.New(), f)
		},
	}

	f.BindFlags(cmd.Flags())
	rootCmd.AddCommand(cmd)
}

func serve(parent context.Context, cfg *config.Config, f *ServeFlags) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ag, err := newAgent(cfg, f.Agent.Token)
	if err != nil {
		return err
	}

	a := handlers.App{Config: *cfg, Chat: ag.controller, Hub: handlers.NewEventHub()}
	a.Initialize()
	a.Hub.Attach(ag.controller)

	// a failed open is reported through the status endpoint, the agent keeps serving
	if err := ag.open(ctx, f.Agent.ConversationID); err != nil {
		zap.S().Errorw("failed to open chat", "error", err)
	}

	var sched *scheduler.Scheduler
	if ag.session.Identity.Role.IsStaff() {
		sched = scheduler.NewScheduler(ag.controller, cfg.RefreshSchedule, cfg.HTTPTimeout)
		if err := sched.Start(); err != nil {
			return err
		}
		defer sched.Stop()
	}
	defer ag.controller.Teardown()

	addr := f.Listen
	if addr == "" {
		addr = fmt.Sprintf(":%v", cfg.Port)
	}
	srv := &http.Server{Addr: addr, Handler: a.Router}

	errc := make(chan error, 1)
	go func() {
		zap.S().Infow("evchat is up and running", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server failed")
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	zap.S().Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
