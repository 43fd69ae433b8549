package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/linesmerrill/evchat/config"
	"github.com/linesmerrill/evchat/models"
)

func init() {
	f := NewAgentFlags()
	f.Wait = 0
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the log of the active conversation",
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
			if f.Wait > 0 {
				ag.waitConnected(f.Wait)
			}

			msgs := ag.controller.Messages()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(msgs)
			}
			printHistory(cmd.OutOrStdout(), ag.session.Identity.AccountID, msgs)
			return nil
		},
	}

	f.BindFlags(cmd.Flags())
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the log as JSON")
	rootCmd.AddCommand(cmd)
}

func printHistory(w io.Writer, self string, msgs []models.Message) {
	for _, m := range msgs {
		who := m.SenderID
		if who == self {
			who = "me"
		}
		line := fmt.Sprintf("[%s] %s: %s", m.Timestamp.Local().Format(time.Kitchen), who, m.Content)
		if m.Edited {
			line += " (edited)"
		}
		fmt.Fprintln(w, line)
	}
}
