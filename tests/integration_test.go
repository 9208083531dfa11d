package tests

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"lootroom/internal/adapter/handler"
	"lootroom/internal/adapter/storage"
	"lootroom/internal/core/domain"
	"lootroom/internal/core/service"
	"lootroom/internal/protocol"
)

func newTestHost(t *testing.T) (*httptest.Server, *service.SyncService) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := handler.NewHub(logger)
	svc := service.NewSyncService(service.Config{
		GroupID:        "itest",
		GroupName:      "Integration Stash",
		MaxEntries:     10,
		DefaultPerm:    domain.PermissionEditor,
		BootstrapAdmin: true,
	}, hub, logger)
	hub.Bind(svc)

	a, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "itest.sqlite3"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	srv := httptest.NewServer(handler.Router(hub, handler.NewHTTPHandler(svc, a, "itest"), logger))
	t.Cleanup(srv.Close)
	return srv, svc
}

func dialPeer(t *testing.T, srv *httptest.Server, name string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?name=" + name
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", u, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil drains frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want protocol.MessageType) protocol.Envelope {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		if env.Type == want {
			return env
		}
		if time.Now().After(deadline) {
			t.Fatalf("no %s frame before deadline", want)
		}
	}
}

func sendReq(t *testing.T, conn *websocket.Conn, msgType protocol.MessageType, payload any) {
	t.Helper()
	env, err := protocol.NewEnvelope(msgType, payload)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

func TestEndToEnd_MutateNotifyResync(t *testing.T) {
	srv, svc := newTestHost(t)

	dm := dialPeer(t, srv, "dm")
	readUntil(t, dm, protocol.TypeFullSync) // initial sync on connect

	sendReq(t, dm, protocol.TypeAddItem, protocol.AddItemRequest{
		Entry: domain.Entry{Name: "Torch", Category: domain.CategoryTool, Quantity: 3},
	})

	env := readUntil(t, dm, protocol.TypeChangeNotice)
	var notice domain.ChangeNotice
	if err := json.Unmarshal(env.Payload, &notice); err != nil {
		t.Fatalf("decode notice: %v", err)
	}
	if notice.Action != domain.ActionAdded || notice.Actor != "dm" || notice.Version != 1 {
		t.Fatalf("unexpected notice %+v", notice)
	}

	// The requester resyncs like everyone else.
	sendReq(t, dm, protocol.TypeRequestFullSync, struct{}{})
	env = readUntil(t, dm, protocol.TypeFullSync)
	var full protocol.FullSync
	if err := json.Unmarshal(env.Payload, &full); err != nil {
		t.Fatalf("decode full sync: %v", err)
	}
	if len(full.Entries) != 1 || full.Entries[0].Name != "Torch" {
		t.Fatalf("unexpected entries %+v", full.Entries)
	}
	if full.Meta.Version != 1 {
		t.Fatalf("expected version 1, got %d", full.Meta.Version)
	}

	// A second peer sees the same state on connect and its own mutations
	// reach the first peer.
	brin := dialPeer(t, srv, "brin")
	env = readUntil(t, brin, protocol.TypeFullSync)
	if err := json.Unmarshal(env.Payload, &full); err != nil {
		t.Fatalf("decode full sync: %v", err)
	}
	if len(full.Entries) != 1 {
		t.Fatalf("new peer should see the current state, got %+v", full.Entries)
	}

	sendReq(t, brin, protocol.TypeSetQuantity, protocol.SetQuantityRequest{
		EntryID: full.Entries[0].ID, Quantity: 7,
	})
	env = readUntil(t, dm, protocol.TypeChangeNotice)
	if err := json.Unmarshal(env.Payload, &notice); err != nil {
		t.Fatalf("decode notice: %v", err)
	}
	if notice.Action != domain.ActionQuantityChanged || notice.Amount != 7 || notice.Actor != "brin" {
		t.Fatalf("unexpected notice %+v", notice)
	}
	if svc.Version() != 2 {
		t.Fatalf("expected version 2, got %d", svc.Version())
	}
}

func TestEndToEnd_PermissionDemotionIsEnforced(t *testing.T) {
	srv, svc := newTestHost(t)

	dm := dialPeer(t, srv, "dm")
	readUntil(t, dm, protocol.TypeFullSync)

	brin := dialPeer(t, srv, "brin")
	readUntil(t, brin, protocol.TypeFullSync)

	// Find brin's connection id from the participant list broadcasts. The
	// first list dm sees may predate brin's join, so keep reading.
	var brinID string
	var list protocol.ParticipantList
	for i := 0; i < 5 && brinID == ""; i++ {
		env := readUntil(t, dm, protocol.TypeParticipantList)
		if err := json.Unmarshal(env.Payload, &list); err != nil {
			t.Fatalf("decode list: %v", err)
		}
		for _, p := range list.Participants {
			if p.DisplayName == "brin" {
				brinID = p.ConnectionID
			}
		}
	}
	if brinID == "" {
		t.Fatal("brin not in participant list")
	}

	sendReq(t, dm, protocol.TypeSetUserPermission, protocol.SetUserPermissionRequest{
		TargetID: brinID, Permission: domain.PermissionViewer,
	})
	env := readUntil(t, brin, protocol.TypeParticipantList)
	if err := json.Unmarshal(env.Payload, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}

	versionBefore := svc.Version()
	sendReq(t, brin, protocol.TypeAddItem, protocol.AddItemRequest{
		Entry: domain.Entry{Name: "Lockpick", Category: domain.CategoryTool, Quantity: 1},
	})

	env = readUntil(t, brin, protocol.TypeMessage)
	var msg protocol.Message
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if !strings.Contains(msg.Text, "permission denied") {
		t.Fatalf("expected a denial notice, got %q", msg.Text)
	}
	if svc.Version() != versionBefore {
		t.Fatal("denied request must not advance the clock")
	}
	if len(svc.SnapshotCopy().Entries) != 0 {
		t.Fatal("denied request must not mutate the store")
	}
}

func TestPersistence_RestartRoundTrip(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "restart.sqlite3")
	ctx := context.Background()

	open := func() *storage.SQLiteAdapter {
		a, err := storage.OpenSQLite(path)
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		return a
	}
	newSvc := func() *service.SyncService {
		return service.NewSyncService(service.Config{
			GroupID:        "itest",
			GroupName:      "Integration Stash",
			MaxEntries:     10,
			DefaultPerm:    domain.PermissionEditor,
			BootstrapAdmin: true,
		}, noopBroadcaster{}, logger)
	}

	repo := open()
	svc := newSvc()
	persister := service.NewPersister(svc, repo, time.Hour, logger)
	if err := persister.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	svc.Connect("c1", "dm")
	svc.AddItem("c1", domain.Entry{Name: "Torch", Category: domain.CategoryTool, Quantity: 3})
	want := svc.SnapshotCopy()
	persister.Shutdown()
	repo.Close()

	// Fresh process: clear in-memory state and bootstrap from disk.
	repo2 := open()
	defer repo2.Close()
	svc2 := newSvc()
	if err := service.NewPersister(svc2, repo2, time.Hour, logger).Bootstrap(ctx); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}

	got := svc2.SnapshotCopy()
	if got.Meta.Version != want.Meta.Version {
		t.Errorf("version mismatch: %d != %d", got.Meta.Version, want.Meta.Version)
	}
	if len(got.Entries) != len(want.Entries) {
		t.Fatalf("entry count mismatch: %d != %d", len(got.Entries), len(want.Entries))
	}
	for i := range want.Entries {
		if got.Entries[i].ID != want.Entries[i].ID || got.Entries[i].Quantity != want.Entries[i].Quantity {
			t.Errorf("entry %d mismatch: %+v != %+v", i, got.Entries[i], want.Entries[i])
		}
	}
	if len(got.Participants) != 1 {
		t.Fatalf("participant registry should survive restart, got %d", len(got.Participants))
	}
	if got.Participants[0].Online {
		t.Error("restored participants must be offline")
	}
	if got.Participants[0].Permission != domain.PermissionAdmin {
		t.Error("restored permission should survive restart")
	}
}

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(protocol.Envelope)    {}
func (noopBroadcaster) Send(string, protocol.Envelope) {}
