package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashureev/retention-agent/internal/client"
)

func newSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <message>",
		Short: "Send a message to a thread",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			threadID, err := requireThread()
			if err != nil {
				return err
			}
			resp, err := apiClient().Send(cmd.Context(), threadID, strings.Join(args, " "))
			return render(cmd, resp, err)
		},
	}
}

func newDecisionCmd(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			threadID, err := requireThread()
			if err != nil {
				return err
			}
			c := apiClient()
			var resp *client.ChatResponse
			if name == "approve" {
				resp, err = c.Approve(cmd.Context(), threadID)
			} else {
				resp, err = c.Reject(cmd.Context(), threadID)
			}
			return render(cmd, resp, err)
		},
	}
}

func newThreadCmd() *cobra.Command {
	threadCmd := &cobra.Command{
		Use:   "thread",
		Short: "Manage threads",
	}

	var asJSON bool
	show := &cobra.Command{
		Use:   "show [thread-id]",
		Short: "Show a thread transcript",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			threadID := cfg.Thread
			if len(args) == 1 {
				threadID = args[0]
			}
			if threadID == "" {
				return errors.New("no thread id given")
			}
			view, err := apiClient().Thread(cmd.Context(), threadID)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), view)
			}
			printThread(cmd.OutOrStdout(), view)
			return nil
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")

	newThread := &cobra.Command{
		Use:   "new",
		Short: "Allocate a new thread id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := apiClient().NewThread(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	threadCmd.AddCommand(show, newThread)
	return threadCmd
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server readiness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := apiClient().Health(cmd.Context())
			if status != nil {
				if perr := printJSON(cmd.OutOrStdout(), status); perr != nil {
					return perr
				}
			}
			return err
		},
	}
}

// render prints a chat outcome; API errors that carry a body are printed
// rather than returned twice.
func render(cmd *cobra.Command, resp *client.ChatResponse, err error) error {
	var apiErr *client.APIError
	if err != nil && !errors.As(err, &apiErr) {
		return err
	}
	if resp != nil && resp.Status != "" {
		printResponse(cmd.OutOrStdout(), resp)
	}
	if apiErr != nil {
		return fmt.Errorf("request failed with status %d", apiErr.StatusCode)
	}
	return nil
}
