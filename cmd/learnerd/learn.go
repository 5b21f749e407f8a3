package main

import (
	"strings"

	"github.com/itsneelabh/gomind-learning/core"
	"github.com/spf13/cobra"
)

func newLearnCmd(root *rootOptions) *cobra.Command {
	var windowDays int

	cmd := &cobra.Command{
		Use:   "learn <conversation-id>",
		Short: "Analyze a conversation and review the proposals it produces",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, cleanup, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := e.AnalyzeConversation(commandContext(cmd), args[0], windowDays)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().IntVar(&windowDays, "window-days", 0, "days of history to analyze (0 uses the configured default)")
	return cmd
}

func newRespondCmd(root *rootOptions) *cobra.Command {
	var appCtx core.ApplicationContext

	cmd := &cobra.Command{
		Use:   "respond <message...>",
		Short: "Answer a message with the best approved pattern",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, cleanup, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			reply, err := e.Respond(commandContext(cmd), strings.Join(args, " "), &appCtx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), reply)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&appCtx.ConversationID, "conversation", "", "current conversation ID")
	flags.StringVar(&appCtx.ContextType, "context-type", "", "context type, e.g. support or sales")
	flags.StringVar(&appCtx.UserName, "name", "", "user name for the {name} placeholder")
	flags.StringVar(&appCtx.Formality, "formality", "", "formal or casual")
	flags.StringSliceVar(&appCtx.Keywords, "keyword", nil, "context keyword (repeatable)")
	flags.StringToStringVar(&appCtx.Variables, "var", nil, "template variable as key=value (repeatable)")
	return cmd
}

func newReportCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print the intelligence report and repository counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, cleanup, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			status, err := e.Status(commandContext(cmd))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), status)
		},
	}
}
