package cmd

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/linesmerrill/evchat/chat"
	"github.com/linesmerrill/evchat/config"
)

func init() {
	f := NewAgentFlags()

	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message to the active conversation and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ag, err := newAgent(config.New(), f.Token)
			if err != nil {
				return err
			}
			defer ag.controller.Teardown()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := ag.open(ctx, f.ConversationID); err != nil {
				return errors.WithMessage(err, "failed to open chat")
			}
			if st := ag.waitConnected(f.Wait); st != chat.StateConnected {
				zap.S().Warnw("live connection not ready", "state", st, "wait", f.Wait)
				return errors.WithMessagef(chat.ErrNotConnected, "connection state %s", st)
			}

			msg, err := ag.controller.Send(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(msg)
		},
	}

	f.BindFlags(cmd.Flags())
	rootCmd.AddCommand(cmd)
}
