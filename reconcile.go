package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"messaging-service/internal/services"
)

func newReconcileCommand() *cobra.Command {
	var conversationID int64

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute unread counters from message history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStores(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer st.close()

			svc := services.NewChatService(services.Deps{
				Conversations: st.conversations,
				Messages:      st.messages,
				Unread:        st.unread,
				Users:         st.users,
				Log:           log,
			}, services.Options{StoreTimeout: cfg.StoreTimeout})

			if conversationID > 0 {
				if err := svc.RecomputeUnread(cmd.Context(), conversationID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "recomputed conversation %d\n", conversationID)
				return nil
			}

			n, err := svc.RecomputeAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("reconcile stopped after %d conversations: %w", n, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recomputed %d conversations\n", n)
			return nil
		},
	}

	cmd.Flags().Int64Var(&conversationID, "conversation", 0, "Only recompute this conversation")
	return cmd
}
