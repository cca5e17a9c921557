// Package rag is the HTTP client for the retrieval backend. It issues query
// calls against the local-only and hybrid endpoints, normalizes their
// response shapes, and exposes the best-effort session teardown calls.
package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ragdesk/chatkit/core/chat"
)

const defaultTimeout = 120 * time.Second

// QueryRequest is the wire payload for both query endpoints. UseWebSearch
// selects the hybrid endpoint; the rest of the payload is identical.
type QueryRequest struct {
	Query               string         `json:"query"`
	Model               string         `json:"model"`
	ChatID              string         `json:"chat_id"`
	ConversationHistory []chat.Message `json:"conversation_history"`
	UseWebSearch        bool           `json:"use_web_search"`
	TrustedSitesOnly    bool           `json:"trusted_sites_only"`
	Filename            string         `json:"filename,omitempty"`
}

// QueryResponse is the normalized backend answer. The hybrid endpoint names
// the answer field "response" while the local endpoint names it "answer";
// both decode into Answer.
type QueryResponse struct {
	Answer            string
	Sources           []chat.Citation
	SearchType        string
	HasLocalKnowledge bool
	HasWebKnowledge   bool
}

// wireResponse carries both answer field variants for normalization.
type wireResponse struct {
	Answer            string          `json:"answer"`
	Response          string          `json:"response"`
	Sources           []chat.Citation `json:"sources"`
	SearchType        string          `json:"search_type"`
	HasLocalKnowledge bool            `json:"has_local_knowledge"`
	HasWebKnowledge   bool            `json:"has_web_knowledge"`
}

// APIError is a non-2xx backend response. Detail carries the structured
// reason from the error body when one was provided.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("backend returned %d", e.StatusCode)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client talks to one retrieval backend instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend base URL the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Query issues one query call. The endpoint is selected by req.UseWebSearch:
// /hybrid-query when set, /query otherwise. Cancelling ctx aborts the call.
func (c *Client) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	endpoint := c.baseURL + "/query"
	if req.UseWebSearch {
		endpoint = c.baseURL + "/hybrid-query"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal query request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build query request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("query backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeAPIError(resp)
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}

	answer := wire.Answer
	if answer == "" {
		answer = wire.Response
	}

	searchType := wire.SearchType
	if searchType == "" {
		searchType = chat.CitationLocal
	}

	return &QueryResponse{
		Answer:            answer,
		Sources:           wire.Sources,
		SearchType:        searchType,
		HasLocalKnowledge: wire.HasLocalKnowledge,
		HasWebKnowledge:   wire.HasWebKnowledge,
	}, nil
}

// DiscardSession asks the backend to drop any server-held context for the
// session id. Best-effort from the caller's point of view.
func (c *Client) DiscardSession(ctx context.Context, id string) error {
	return c.delete(ctx, c.baseURL+"/sessions/"+id)
}

// DiscardAllSessions asks the backend to drop all server-held contexts for
// the identity behind this client's cookie/credentials.
func (c *Client) DiscardAllSessions(ctx context.Context) error {
	return c.delete(ctx, c.baseURL+"/sessions")
}

func (c *Client) delete(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	io.Copy(io.Discard, resp.Body)
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return apiErr
	}

	var detail struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &detail); err == nil && detail.Detail != "" {
		apiErr.Detail = detail.Detail
	}

	return apiErr
}
