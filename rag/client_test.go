package rag_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ragdesk/chatkit/core/chat"
	"github.com/ragdesk/chatkit/rag"
)

func TestClient_Query_LocalEndpoint(t *testing.T) {
	var gotPath string
	var gotPayload map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotPayload)
		json.NewEncoder(w).Encode(map[string]any{
			"answer":  "Hi there",
			"sources": []map[string]any{{"filename": "doc.md", "type": "local"}},
		})
	}))
	defer server.Close()

	client := rag.NewClient(server.URL)
	resp, err := client.Query(context.Background(), rag.QueryRequest{
		Query:            "Hello",
		Model:            "model-a",
		ChatID:           "chat-1",
		TrustedSitesOnly: true,
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if gotPath != "/query" {
		t.Errorf("got path %q, want /query", gotPath)
	}
	if gotPayload["chat_id"] != "chat-1" {
		t.Errorf("got chat_id %v, want chat-1", gotPayload["chat_id"])
	}
	if gotPayload["trusted_sites_only"] != true {
		t.Errorf("got trusted_sites_only %v, want true", gotPayload["trusted_sites_only"])
	}
	if resp.Answer != "Hi there" {
		t.Errorf("got answer %q, want %q", resp.Answer, "Hi there")
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Filename != "doc.md" {
		t.Errorf("got sources %v, want one doc.md citation", resp.Sources)
	}
	if resp.SearchType != chat.CitationLocal {
		t.Errorf("got search type %q, want %q", resp.SearchType, chat.CitationLocal)
	}
}

func TestClient_Query_HybridEndpoint_NormalizesResponseField(t *testing.T) {
	var gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]any{
			"response":            "Hybrid answer",
			"search_type":         "hybrid",
			"has_local_knowledge": true,
			"has_web_knowledge":   true,
		})
	}))
	defer server.Close()

	client := rag.NewClient(server.URL)
	resp, err := client.Query(context.Background(), rag.QueryRequest{
		Query:        "Hello",
		UseWebSearch: true,
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if gotPath != "/hybrid-query" {
		t.Errorf("got path %q, want /hybrid-query", gotPath)
	}
	if resp.Answer != "Hybrid answer" {
		t.Errorf("got answer %q, want %q", resp.Answer, "Hybrid answer")
	}
	if resp.SearchType != "hybrid" {
		t.Errorf("got search type %q, want hybrid", resp.SearchType)
	}
	if !resp.HasLocalKnowledge || !resp.HasWebKnowledge {
		t.Error("knowledge flags should be carried through")
	}
}

func TestClient_Query_CarriesConversationHistory(t *testing.T) {
	var gotPayload struct {
		ConversationHistory []chat.Message `json:"conversation_history"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotPayload)
		json.NewEncoder(w).Encode(map[string]any{"answer": "ok"})
	}))
	defer server.Close()

	client := rag.NewClient(server.URL)
	_, err := client.Query(context.Background(), rag.QueryRequest{
		Query: "next question",
		ConversationHistory: []chat.Message{
			chat.NewMessage(chat.RoleUser, "first question"),
			chat.NewMessage(chat.RoleAssistant, "first answer"),
			chat.NewMessage(chat.RoleUser, "next question"),
		},
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if len(gotPayload.ConversationHistory) != 3 {
		t.Fatalf("got %d history messages, want 3", len(gotPayload.ConversationHistory))
	}
	if gotPayload.ConversationHistory[0].Role != chat.RoleUser {
		t.Errorf("got first role %q, want user", gotPayload.ConversationHistory[0].Role)
	}
}

func TestClient_Query_APIErrorDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]any{"detail": "model unavailable"})
	}))
	defer server.Close()

	client := rag.NewClient(server.URL)
	_, err := client.Query(context.Background(), rag.QueryRequest{Query: "q"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var apiErr *rag.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %T, want *rag.APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway {
		t.Errorf("got status %d, want %d", apiErr.StatusCode, http.StatusBadGateway)
	}
	if apiErr.Detail != "model unavailable" {
		t.Errorf("got detail %q, want %q", apiErr.Detail, "model unavailable")
	}
}

func TestClient_Query_MalformedErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := rag.NewClient(server.URL)
	_, err := client.Query(context.Background(), rag.QueryRequest{Query: "q"})

	var apiErr *rag.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %T, want *rag.APIError", err)
	}
	if apiErr.Detail != "" {
		t.Errorf("got detail %q, want empty", apiErr.Detail)
	}
}

func TestClient_Query_ContextCancelled(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	client := rag.NewClient(server.URL)
	_, err := client.Query(ctx, rag.QueryRequest{Query: "long query"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got error %v, want context.Canceled", err)
	}
}

func TestClient_DiscardSession(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
	}))
	defer server.Close()

	client := rag.NewClient(server.URL)
	if err := client.DiscardSession(context.Background(), "chat-42"); err != nil {
		t.Fatalf("DiscardSession failed: %v", err)
	}

	if gotMethod != http.MethodDelete {
		t.Errorf("got method %q, want DELETE", gotMethod)
	}
	if gotPath != "/sessions/chat-42" {
		t.Errorf("got path %q, want /sessions/chat-42", gotPath)
	}
}

func TestClient_DiscardAllSessions(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer server.Close()

	client := rag.NewClient(server.URL)
	if err := client.DiscardAllSessions(context.Background()); err != nil {
		t.Fatalf("DiscardAllSessions failed: %v", err)
	}

	if gotPath != "/sessions" {
		t.Errorf("got path %q, want /sessions", gotPath)
	}
}

func TestClient_TrimsTrailingSlash(t *testing.T) {
	client := rag.NewClient("http://localhost:8000/")
	if client.BaseURL() != "http://localhost:8000" {
		t.Errorf("got base URL %q, want trailing slash trimmed", client.BaseURL())
	}
}
