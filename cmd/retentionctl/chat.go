package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ashureev/retention-agent/internal/client"
)

// chatAPI is the subset of the client used by the interactive loop.
type chatAPI interface {
	NewThread(ctx context.Context) (string, error)
	Send(ctx context.Context, threadID, message string) (*client.ChatResponse, error)
	Approve(ctx context.Context, threadID string) (*client.ChatResponse, error)
	Reject(ctx context.Context, threadID string) (*client.ChatResponse, error)
}

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), apiClient(), cfg.Thread, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func runChat(ctx context.Context, api chatAPI, threadID string, in io.Reader, out io.Writer) error {
	if threadID == "" {
		id, err := api.NewThread(ctx)
		if err != nil {
			return fmt.Errorf("create thread: %w", err)
		}
		threadID = id
	}
	fmt.Fprintf(out, "thread %s (type 'exit' to quit)\n", color.CyanString(threadID))

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, color.BlueString("you> "))
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		resp, err := api.Send(ctx, threadID, line)
		for {
			if err != nil && (resp == nil || resp.Status == "") {
				fmt.Fprintln(out, errorMark(), err)
				break
			}
			printResponse(out, resp)
			if resp.Status != "requires_action" {
				break
			}

			approve, ok := promptApproval(scanner, out)
			if !ok {
				return scanner.Err()
			}
			if approve {
				resp, err = api.Approve(ctx, threadID)
				continue
			}
			resp, err = api.Reject(ctx, threadID)
			if err == nil {
				printResponse(out, resp)
				fmt.Fprintln(out, color.YellowString("send a corrected instruction to continue"))
			} else if resp != nil && resp.Status != "" {
				printResponse(out, resp)
			} else {
				fmt.Fprintln(out, errorMark(), err)
			}
			break
		}
	}
}

// promptApproval asks until it reads y or n. ok is false at end of input.
func promptApproval(scanner *bufio.Scanner, out io.Writer) (approve, ok bool) {
	for {
		fmt.Fprint(out, color.YellowString("approve? [y/n] "))
		if !scanner.Scan() {
			return false, false
		}
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "y", "yes", "approve":
			return true, true
		case "n", "no", "reject":
			return false, true
		}
	}
}
