package main

import (
	"strings"

	"github.com/itsneelabh/gomind-learning/core"
	"github.com/spf13/cobra"
)

func newRememberCmd(root *rootOptions) *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "remember <conversation-id> <text...>",
		Short: "Store a conversation turn as a memory",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, cleanup, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			var metadata map[string]string
			if role != "" {
				metadata = map[string]string{"role": role}
			}
			m, err := e.Memory().StoreMemory(commandContext(cmd), args[0], strings.Join(args[1:], " "), metadata)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), m)
		},
	}

	cmd.Flags().StringVar(&role, "role", "user", "speaker role: user or assistant")
	return cmd
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	var (
		limit          int
		conversationID string
		hybrid         bool
	)

	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Find memories similar to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, cleanup, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := commandContext(cmd)
			query := strings.Join(args, " ")
			filter := core.MemoryFilter{ConversationID: conversationID}

			var hits []core.ScoredMemory
			if hybrid {
				mc := e.Config().Memory
				hits, err = e.Memory().SearchHybrid(ctx, query, limit, mc.TextWeight, mc.VectorWeight, filter)
			} else {
				hits, err = e.Memory().SearchSimilar(ctx, query, limit, filter)
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), hits)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 5, "maximum number of results")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "restrict to one conversation")
	cmd.Flags().BoolVar(&hybrid, "hybrid", false, "blend keyword overlap with vector similarity")
	return cmd
}
