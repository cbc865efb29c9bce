// Demo program for the Claude Agent SDK.
//
// This demonstrates basic usage of the Go SDK for Claude Code.
// Requires CLAUDE_CODE_OAUTH_TOKEN or ANTHROPIC_API_KEY environment variable.
//
// Usage:
//
//	go run ./cmd/demo "What is 2+2?"
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	claudeagent "github.com/flowctl/claude-agent-sdk-go"
)

func main() {
	if os.Getenv("CLAUDE_CODE_OAUTH_TOKEN") == "" && os.Getenv("ANTHROPIC_API_KEY") == "" {
		fmt.Fprintln(os.Stderr, "Error: CLAUDE_CODE_OAUTH_TOKEN or ANTHROPIC_API_KEY must be set")
		os.Exit(1)
	}

	prompt := "What is 2+2? Answer briefly."
	if len(os.Args) > 1 {
		prompt = strings.Join(os.Args[1:], " ")
	}

	fmt.Printf("Prompt: %s\n\n", prompt)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	handle, err := claudeagent.Query(ctx, prompt,
		claudeagent.WithSystemPrompt("You are a helpful assistant. Keep responses brief and to the point."),
		claudeagent.WithModel("claude-sonnet-4-5-20250929"),
		claudeagent.WithPermissionMode(claudeagent.PermissionModeDefault),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting query: %v\n", err)
		os.Exit(1)
	}
	defer handle.Close()

	fmt.Println("Response:")
	fmt.Println("─────────")

	for msg, err := range handle.Messages() {
		if err != nil {
			fmt.Fprintf(os.Stderr, "\nstream error: %v\n", err)
			os.Exit(1)
		}

		switch m := msg.(type) {
		case claudeagent.AssistantMessage:
			if text := m.ContentText(); text != "" {
				fmt.Print(text)
			}

		case claudeagent.StreamEvent:
			if m.Event == "delta" && m.Delta != "" {
				fmt.Print(m.Delta)
			}

		case claudeagent.ResultMessage:
			fmt.Println()
			fmt.Println("─────────")
			fmt.Printf("Status: %s\n", m.Status)
			if m.Usage != nil {
				fmt.Printf("Tokens: %d input, %d output (cost: $%.4f)\n",
					m.Usage.InputTokens,
					m.Usage.OutputTokens,
					m.TotalCostUSD,
				)
			}

		case claudeagent.TodoUpdateMessage:
			for _, item := range m.Items {
				fmt.Printf("[%s] %s\n", item.Status, item.Content)
			}
		}
	}
}
