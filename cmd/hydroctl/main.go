// Package main implements the hydroctl CLI for manual operations against the
// hydrochatd HTTP server.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the hydrochatd HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hydroctl",
	Short: "CLI for hydrochatd server operations",
	Long: `hydroctl is a command-line interface for interacting with the hydrochatd server.
It provides commands for asking questions, ingesting documents, and checking server health.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8087", "hydrochatd server URL")
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(healthCmd)
}

var (
	conversationID string
	streamReply    bool
	noRetrieval    bool
	providerName   string
	modelName      string
)

// askCmd sends one question to the chat endpoint
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the hydroponics assistant a question",
	Long: `Ask the hydroponics assistant a question.

Examples:
  # Ask a question
  hydroctl ask "What pH should I target for lettuce?"

  # Continue a conversation
  hydroctl ask --conversation 8f14e45f "And what about EC?"

  # Stream the reply as it is generated
  hydroctl ask --stream "How do I set up an NFT channel?"

  # Answer without knowledge-base grounding, on a specific provider
  hydroctl ask --no-retrieval --provider ollama "What is an EC meter?"`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

// ingestCmd uploads a document to the knowledge base
var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Add a document to the knowledge base",
	Long: `Add a document to the knowledge base from a file or stdin.

The document title defaults to the file name; use --title for the
"<Category> - <Name>" convention so retrieval can attribute categories.

Examples:
  # Ingest a file
  hydroctl ingest --title "Nutrients - EC Targets" ec-targets.md

  # Ingest from stdin
  cat guide.txt | hydroctl ingest --title "Lighting - DLI Basics" -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check hydrochatd server health",
	RunE:  runHealth,
}

var (
	ingestTitle string
	ingestScope string
)

func init() {
	askCmd.Flags().StringVar(&conversationID, "conversation", "", "conversation ID to continue")
	askCmd.Flags().BoolVar(&streamReply, "stream", false, "stream the reply as it is generated")
	askCmd.Flags().BoolVar(&noRetrieval, "no-retrieval", false, "answer without knowledge-base grounding")
	askCmd.Flags().StringVar(&providerName, "provider", "", "generation provider for this request")
	askCmd.Flags().StringVar(&modelName, "model", "", "model for this request")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "document title (\"<Category> - <Name>\")")
	ingestCmd.Flags().StringVar(&ingestScope, "scope", "knowledge-base", "ownership scope for the document")
}

// ChatRequest matches internal/http ChatRequest
type ChatRequest struct {
	ConversationID string          `json:"conversation_id,omitempty"`
	SessionID      string          `json:"session_id"`
	Message        string          `json:"message"`
	UseRetrieval   *bool           `json:"use_retrieval,omitempty"`
	ProviderConfig *ProviderConfig `json:"provider_config,omitempty"`
}

// ProviderConfig matches internal/http ProviderConfig
type ProviderConfig struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// ChatResponse matches the chat endpoint response shape
type ChatResponse struct {
	ConversationID string `json:"conversation_id"`
	OffTopic       bool   `json:"off_topic"`
	RetrievalUsed  bool   `json:"retrieval_used"`
	SourceCount    int    `json:"source_count"`
	Message        struct {
		Content string `json:"content"`
	} `json:"message"`
}

// IngestRequest matches internal/http IngestRequest
type IngestRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Scope   string `json:"scope,omitempty"`
}

// IngestResponse matches the ingest endpoint response shape
type IngestResponse struct {
	DocumentID    string `json:"document_id"`
	ChunkCount    int    `json:"chunk_count"`
	EmbeddedCount int    `json:"embedded_count"`
}

// HealthResponse matches internal/http HealthResponse
type HealthResponse struct {
	Status string `json:"status"`
}

func runAsk(cmd *cobra.Command, args []string) error {
	req := ChatRequest{
		ConversationID: conversationID,
		SessionID:      "hydroctl",
		Message:        args[0],
	}
	if noRetrieval {
		enabled := false
		req.UseRetrieval = &enabled
	}
	if providerName != "" || modelName != "" {
		req.ProviderConfig = &ProviderConfig{Provider: providerName, Model: modelName}
	}

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	if streamReply {
		return askStreaming(reqJSON)
	}

	url := fmt.Sprintf("%s/api/v1/chat", serverURL)
	resp, err := postJSON(url, reqJSON, 120*time.Second)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Println(chatResp.Message.Content)
	fmt.Fprintf(os.Stderr, "\n[hydroctl] conversation: %s\n", chatResp.ConversationID)
	if chatResp.RetrievalUsed {
		fmt.Fprintf(os.Stderr, "[hydroctl] sources: %d\n", chatResp.SourceCount)
	}
	return nil
}

// askStreaming consumes the SSE endpoint, printing fragments as they arrive.
func askStreaming(reqJSON []byte) error {
	url := fmt.Sprintf("%s/api/v1/chat/stream", serverURL)
	resp, err := postJSON(url, reqJSON, 0)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	var event string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var payload struct {
				ConversationID string `json:"conversation_id"`
				Content        string `json:"content"`
				Error          string `json:"error"`
			}
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload); err != nil {
				continue
			}
			switch event {
			case "chunk":
				fmt.Print(payload.Content)
			case "complete":
				fmt.Println()
				fmt.Fprintf(os.Stderr, "\n[hydroctl] conversation: %s\n", payload.ConversationID)
				return nil
			case "error":
				fmt.Println()
				return fmt.Errorf("stream error: %s", payload.Error)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return fmt.Errorf("stream ended without completion")
}

func runIngest(cmd *cobra.Command, args []string) error {
	var content []byte
	var err error

	title := ingestTitle
	if len(args) == 0 || args[0] == "-" {
		content, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		content, err = os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", args[0], err)
		}
		if title == "" {
			title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		}
	}

	if len(content) == 0 {
		return fmt.Errorf("no content to ingest")
	}

	reqJSON, err := json.Marshal(IngestRequest{
		Title:   title,
		Content: string(content),
		Scope:   ingestScope,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/documents", serverURL)
	resp, err := postJSON(url, reqJSON, 120*time.Second)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var ingestResp IngestResponse
	if err := json.NewDecoder(resp.Body).Decode(&ingestResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Document:  %s\n", ingestResp.DocumentID)
	fmt.Printf("Chunks:    %d\n", ingestResp.ChunkCount)
	fmt.Printf("Embedded:  %d\n", ingestResp.EmbeddedCount)
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/health", serverURL)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect to %s: %v\n", url, err)
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	var healthResp HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Server Status: %s\n", healthResp.Status)
	fmt.Printf("Server URL: %s\n", serverURL)
	return nil
}

// postJSON sends a JSON body; timeout 0 means no client timeout (streaming).
func postJSON(url string, body []byte, timeout time.Duration) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
	}
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
}
