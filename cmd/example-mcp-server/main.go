// Example external MCP server for the Claude Agent SDK.
//
// This is a separate process, spoken to over stdio using the official
// github.com/modelcontextprotocol/go-sdk, configured via
// WithMCPServers rather than the in-process CreateMcpServer path in
// mcp.go. It exposes a couple of small lookup/notes tools useful for
// exercising that subprocess-MCP wiring end to end.
//
// Usage:
//
//	go build -o example-mcp-server ./cmd/example-mcp-server
//	# Then configure in your client:
//	# WithMCPServers(map[string]MCPServerConfig{
//	#     "notes": {Command: "./example-mcp-server"},
//	# })
package main

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// noteStore is a process-lifetime, in-memory notes board. It exists to
// give the example tools some state worth calling tools/list and
// tools/call against more than once in a session.
type noteStore struct {
	mu    sync.Mutex
	notes map[string]string
}

func newNoteStore() *noteStore {
	return &noteStore{notes: make(map[string]string)}
}

func (s *noteStore) put(title, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[title] = body
}

func (s *noteStore) get(title string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.notes[title]
	return body, ok
}

func (s *noteStore) titles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	titles := make([]string, 0, len(s.notes))
	for t := range s.notes {
		titles = append(titles, t)
	}
	sort.Strings(titles)
	return titles
}

// SaveNoteArgs is the input schema for the save_note tool.
type SaveNoteArgs struct {
	Title string `json:"title" jsonschema:"Note title, used as its key"`
	Body  string `json:"body" jsonschema:"Note contents"`
}

// GetNoteArgs is the input schema for the get_note tool.
type GetNoteArgs struct {
	Title string `json:"title" jsonschema:"Title of the note to retrieve"`
}

// WordCountArgs is the input schema for the word_count tool.
type WordCountArgs struct {
	Text string `json:"text" jsonschema:"Text to count words in"`
}

func main() {
	store := newNoteStore()

	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "example-notes-server",
			Version: "1.0.0",
		},
		nil,
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "save_note",
		Description: "Save a titled note for later retrieval in this session",
	}, func(
		ctx context.Context,
		req *mcp.CallToolRequest,
		args SaveNoteArgs,
	) (*mcp.CallToolResult, any, error) {
		store.put(args.Title, args.Body)
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("saved note %q", args.Title)},
			},
		}, nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_note",
		Description: "Retrieve a previously saved note by title",
	}, func(
		ctx context.Context,
		req *mcp.CallToolRequest,
		args GetNoteArgs,
	) (*mcp.CallToolResult, any, error) {
		body, ok := store.get(args.Title)
		if !ok {
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{
					&mcp.TextContent{Text: fmt.Sprintf("no note titled %q", args.Title)},
				},
			}, nil, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: body}},
		}, nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_notes",
		Description: "List the titles of all saved notes",
	}, func(
		ctx context.Context,
		req *mcp.CallToolRequest,
		args struct{},
	) (*mcp.CallToolResult, any, error) {
		titles := store.titles()
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: strings.Join(titles, "\n")},
			},
		}, nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "word_count",
		Description: "Count the words in a block of text",
	}, func(
		ctx context.Context,
		req *mcp.CallToolRequest,
		args WordCountArgs,
	) (*mcp.CallToolResult, any, error) {
		count := len(strings.Fields(args.Text))
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("%d", count)},
			},
		}, nil, nil
	})

	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
