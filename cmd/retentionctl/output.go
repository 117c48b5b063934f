package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"

	"github.com/ashureev/retention-agent/internal/client"
)

func errorMark() string { return color.RedString("✗") }

// printResponse renders one chat outcome.
func printResponse(w io.Writer, resp *client.ChatResponse) {
	switch resp.Status {
	case "completed":
		fmt.Fprintf(w, "%s %s\n", color.GreenString("agent:"), resp.Response)
	case "requires_action":
		fmt.Fprintf(w, "%s %s\n", color.YellowString("approval required:"), color.CyanString(resp.Tool))
		printArgs(w, resp.Args)
	case "stopped":
		fmt.Fprintf(w, "%s %s\n", color.YellowString("stopped:"), resp.Reason)
	case "error":
		fmt.Fprintf(w, "%s %s\n", errorMark(), resp.Message)
	default:
		fmt.Fprintf(w, "%s %+v\n", color.YellowString("unexpected response:"), *resp)
	}
}

func printArgs(w io.Writer, args map[string]any) {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %v\n", k, args[k])
	}
}

func printThread(w io.Writer, view *client.ThreadView) {
	fmt.Fprintf(w, "thread %s (%s)\n", color.CyanString(view.ID), view.Status)
	for _, m := range view.Messages {
		switch {
		case len(m.ToolCalls) > 0:
			for _, call := range m.ToolCalls {
				fmt.Fprintf(w, "  %s %s\n", color.MagentaString("call"), call.Name)
			}
		case m.Role == "tool":
			fmt.Fprintf(w, "  %s %s\n", color.BlueString(m.Name+":"), m.Content)
		default:
			fmt.Fprintf(w, "  %s %s\n", color.GreenString(string(m.Role)+":"), m.Content)
		}
	}
	if view.PendingAction != nil {
		fmt.Fprintf(w, "%s %s\n", color.YellowString("pending:"), view.PendingAction.Name)
		printArgs(w, view.PendingAction.Arguments)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
