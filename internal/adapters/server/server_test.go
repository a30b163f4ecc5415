package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/hylla/slate/internal/adapters/server/common"
	"github.com/hylla/slate/internal/adapters/server/httpapi"
	"github.com/hylla/slate/internal/adapters/server/livefeed"
	"github.com/hylla/slate/internal/adapters/storage/sqlite"
	"github.com/hylla/slate/internal/app"
	"github.com/hylla/slate/internal/schema"
)

// newTestStack wires the composed handler over an in-memory repository.
func newTestStack(t *testing.T, ready ReadinessProbe) (*httptest.Server, *livefeed.Hub) {
	t.Helper()
	repo, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	hub := livefeed.NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	next := 0
	ids := func() string {
		next++
		return fmt.Sprintf("id-%02d", next)
	}
	svc := app.NewService(repo, ids, nil, app.ServiceConfig{AutoCreateBoardLists: true, Events: hub})
	registry := app.NewSchemaRegistry(nil, nil, hub)
	if _, err := registry.Load(context.Background(), schema.BuiltinDeclarations()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ready == nil {
		ready = repo.Ping
	}

	handler, _, err := NewHandler(Config{}, Dependencies{
		Service: common.NewAppServiceAdapter(svc, registry),
		Feed:    hub,
		Ready:   ready,
	})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, hub
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// TestHandlerHealthAndReadiness verifies liveness and probe-backed readiness.
func TestHandlerHealthAndReadiness(t *testing.T) {
	server, _ := newTestStack(t, nil)
	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(server.URL + path)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d, want %d", path, resp.StatusCode, http.StatusOK)
		}
	}

	failing, _ := newTestStack(t, func(context.Context) error { return errors.New("db down") })
	resp, err := http.Get(failing.URL + "/readyz")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

// TestHandlerMoveFlowReachesLiveFeed verifies a REST move commits and is pushed to WebSocket clients.
func TestHandlerMoveFlowReachesLiveFeed(t *testing.T) {
	server, _ := newTestStack(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	if _, _, err := conn.Read(ctx); err != nil {
		t.Fatalf("Read(hello) error = %v", err)
	}

	resp := postJSON(t, server.URL+"/api/v1/boards", `{"name":"Roadmap"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create board status = %d", resp.StatusCode)
	}
	var board common.Board
	if err := json.NewDecoder(resp.Body).Decode(&board); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	detailResp, err := http.Get(server.URL + "/api/v1/boards/" + board.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer detailResp.Body.Close()
	var detail common.BoardDetail
	if err := json.NewDecoder(detailResp.Body).Decode(&detail); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(detail.Lists) != 3 {
		t.Fatalf("lists = %d, want 3", len(detail.Lists))
	}

	moveReq, err := http.NewRequest(http.MethodPost, server.URL+"/api/v1/lists/"+detail.Lists[2].ID+"/move", strings.NewReader(`{"from_index":2,"to_index":0}`))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	moveReq.Header.Set("Content-Type", "application/json")
	moveReq.Header.Set(httpapi.ActorHeader, "alice")
	resp, err = http.DefaultClient.Do(moveReq)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("move status = %d body = %s", resp.StatusCode, body)
	}

	resp = postJSON(t, server.URL+"/api/v1/lists/"+detail.Lists[0].ID+"/move", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing to_index status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	// Create events precede the move on the feed; skip until the move arrives.
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		var msg livefeed.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if msg.Type != livefeed.MessageTypeMove {
			continue
		}
		if msg.Event == nil || msg.Event.EntityID != detail.Lists[2].ID {
			t.Fatalf("unexpected move frame %#v", msg)
		}
		if msg.Event.ActorID != "alice" {
			t.Fatalf("move actor = %q, want header actor alice", msg.Event.ActorID)
		}
		break
	}
}

// TestHandlerServesSchemaAndMCP verifies the schema route and MCP mount.
func TestHandlerServesSchemaAndMCP(t *testing.T) {
	server, _ := newTestStack(t, nil)

	resp, err := http.Get(server.URL + "/api/v1/schema")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(body), "type Card {") {
		t.Fatalf("schema body missing Card type:\n%s", body)
	}

	resp = postJSON(t, server.URL+"/mcp", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","clientInfo":{"name":"t","version":"1"}}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mcp initialize status = %d", resp.StatusCode)
	}
}

// TestNormalizeConfig verifies defaults and endpoint collision checks.
func TestNormalizeConfig(t *testing.T) {
	cfg, err := normalizeConfig(Config{APIEndpoint: "api/", WSEndpoint: " "})
	if err != nil {
		t.Fatalf("normalizeConfig() error = %v", err)
	}
	if cfg.HTTPBind != defaultBindAddress || cfg.APIEndpoint != "/api" || cfg.MCPEndpoint != "/mcp" || cfg.WSEndpoint != "/ws" {
		t.Fatalf("unexpected normalized config %#v", cfg)
	}
	if cfg.ServerName != "slate" || cfg.ServerVersion != "dev" {
		t.Fatalf("unexpected server identity %#v", cfg)
	}
	if _, err := normalizeConfig(Config{MCPEndpoint: "/live", WSEndpoint: "live"}); err == nil {
		t.Fatal("expected endpoint collision error")
	}
	if _, _, err := NewHandler(Config{}, Dependencies{}); err == nil {
		t.Fatal("expected missing service error")
	}
}
