package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/mmynk/tabsplit/internal/api"
	"github.com/mmynk/tabsplit/internal/auth"
	"github.com/mmynk/tabsplit/internal/extraction"
	"github.com/mmynk/tabsplit/internal/feed"
	"github.com/mmynk/tabsplit/internal/metrics"
	"github.com/mmynk/tabsplit/internal/middleware"
	"github.com/mmynk/tabsplit/internal/models"
	"github.com/mmynk/tabsplit/internal/storage/sqlite"
)

// fakeExtractor returns canned lines or an error.
type fakeExtractor struct {
	lines []extraction.Line
	err   error
}

func (f *fakeExtractor) Extract(context.Context, []byte, string) ([]extraction.Line, error) {
	return f.lines, f.err
}

type testClients struct {
	sessions api.SessionServiceClient
	receipts api.ReceiptServiceClient
	devices  api.DeviceServiceClient
	jwt      *auth.JWTManager
	store    *sqlite.SQLiteStore
	metrics  *metrics.Metrics
}

// setupTestServer creates a test server with a temporary SQLite database
// and an in-memory change feed.
func setupTestServer(t *testing.T, extractor extraction.Extractor) *testClients {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	broker := feed.NewMemory()
	m := metrics.New()
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)

	interceptors := connect.WithInterceptors(middleware.DeviceInterceptor(jwtManager))

	mux := http.NewServeMux()
	mux.Handle(api.NewSessionServiceHandler(NewSessionService(store, broker, m), interceptors))
	mux.Handle(api.NewReceiptServiceHandler(NewReceiptService(extractor, m), interceptors))
	mux.Handle(api.NewDeviceServiceHandler(NewDeviceService(jwtManager), interceptors))

	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		server.Close()
		broker.Close()
		store.Close()
	})

	return &testClients{
		sessions: api.NewSessionServiceClient(http.DefaultClient, server.URL),
		receipts: api.NewReceiptServiceClient(http.DefaultClient, server.URL),
		devices:  api.NewDeviceServiceClient(http.DefaultClient, server.URL),
		jwt:      jwtManager,
		store:    store,
		metrics:  m,
	}
}

func testSession(names ...string) models.Session {
	s := models.NewSession()
	for i, name := range names {
		s.Diners = append(s.Diners, models.Diner{
			ID:            string(rune('a' + i)),
			Name:          name,
			SelectedItems: []models.LineItem{},
		})
	}
	s.DiscountPercentage = decimal.NewFromInt(10)
	s.LastUpdated = time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	return s
}

func upsert(t *testing.T, client api.SessionServiceClient, id string, s models.Session) {
	t.Helper()
	doc, err := api.EncodeDocument(s)
	if err != nil {
		t.Fatalf("EncodeDocument failed: %v", err)
	}
	if _, err := client.UpsertSession(context.Background(), connect.NewRequest(&api.UpsertSessionRequest{
		SessionID: id,
		Document:  doc,
	})); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	c := setupTestServer(t, nil)

	_, err := c.sessions.GetSession(context.Background(), connect.NewRequest(&api.GetSessionRequest{
		SessionID: "missing",
	}))
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestGetSession_EmptyID(t *testing.T) {
	c := setupTestServer(t, nil)

	_, err := c.sessions.GetSession(context.Background(), connect.NewRequest(&api.GetSessionRequest{}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestUpsertThenGet(t *testing.T) {
	c := setupTestServer(t, nil)
	want := testSession("Ana", "Luis")

	upsert(t, c.sessions, "s1", want)

	resp, err := c.sessions.GetSession(context.Background(), connect.NewRequest(&api.GetSessionRequest{
		SessionID: "s1",
	}))
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	got, err := api.DecodeDocument(resp.Msg.Document)
	if err != nil {
		t.Fatalf("DecodeDocument failed: %v", err)
	}

	if resp.Msg.SessionID != "s1" {
		t.Errorf("Expected session id s1, got %s", resp.Msg.SessionID)
	}
	if len(got.Diners) != 2 || got.Diners[1].Name != "Luis" {
		t.Errorf("Expected diners Ana and Luis, got %+v", got.Diners)
	}
	if !got.DiscountPercentage.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected discount 10, got %s", got.DiscountPercentage)
	}
	if !got.LastUpdated.Equal(want.LastUpdated) {
		t.Errorf("Expected lastUpdated %v, got %v", want.LastUpdated, got.LastUpdated)
	}
}

func TestUpsertSession_Overwrites(t *testing.T) {
	c := setupTestServer(t, nil)

	upsert(t, c.sessions, "s1", testSession("Ana"))
	second := testSession("Ana", "Luis", "Marta")
	second.LastUpdated = second.LastUpdated.Add(time.Minute)
	upsert(t, c.sessions, "s1", second)

	rec, err := c.store.GetSession(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if len(rec.Session.Diners) != 3 {
		t.Errorf("Expected 3 diners after overwrite, got %d", len(rec.Session.Diners))
	}
}

func TestUpsertSession_InvalidDocument(t *testing.T) {
	c := setupTestServer(t, nil)

	_, err := c.sessions.UpsertSession(context.Background(), connect.NewRequest(&api.UpsertSessionRequest{
		SessionID: "s1",
		Document:  api.Document(`"not a session"`),
	}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestUpsertSession_TagsDevice(t *testing.T) {
	c := setupTestServer(t, nil)

	token, _, err := c.jwt.Generate("device-1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	doc, _ := api.EncodeDocument(testSession("Ana"))
	req := connect.NewRequest(&api.UpsertSessionRequest{SessionID: "s1", Document: doc})
	req.Header().Set("Authorization", "Bearer "+token)
	if _, err := c.sessions.UpsertSession(context.Background(), req); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}

	rec, err := c.store.GetSession(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if rec.UpdatedBy != "device-1" {
		t.Errorf("Expected updatedBy device-1, got %q", rec.UpdatedBy)
	}
}

func TestWatchSession(t *testing.T) {
	c := setupTestServer(t, nil)
	upsert(t, c.sessions, "s1", testSession("Ana"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := c.sessions.WatchSession(ctx, connect.NewRequest(&api.WatchSessionRequest{SessionID: "s1"}))
	if err != nil {
		t.Fatalf("WatchSession failed: %v", err)
	}
	defer stream.Close()

	// The current document comes first
	if !stream.Receive() {
		t.Fatalf("expected current document: %v", stream.Err())
	}
	first, err := api.DecodeDocument(stream.Msg().Document)
	if err != nil {
		t.Fatalf("DecodeDocument failed: %v", err)
	}
	if len(first.Diners) != 1 {
		t.Fatalf("Expected 1 diner, got %d", len(first.Diners))
	}

	// The subscription is registered before the current document is sent,
	// so this write cannot be missed.
	next := testSession("Ana", "Luis")
	next.LastUpdated = next.LastUpdated.Add(time.Second)
	upsert(t, c.sessions, "s1", next)

	if !stream.Receive() {
		t.Fatalf("expected change: %v", stream.Err())
	}
	second, err := api.DecodeDocument(stream.Msg().Document)
	if err != nil {
		t.Fatalf("DecodeDocument failed: %v", err)
	}
	if stream.Msg().SessionID != "s1" {
		t.Errorf("Expected session id s1, got %s", stream.Msg().SessionID)
	}
	if len(second.Diners) != 2 {
		t.Errorf("Expected 2 diners, got %d", len(second.Diners))
	}
}

func TestWatchSession_OtherSessionsNotDelivered(t *testing.T) {
	c := setupTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Nothing is stored yet, so the server sends no headers until the first
	// change. Opening the stream blocks until then.
	type result struct {
		doc models.Session
		err error
	}
	received := make(chan result, 1)
	go func() {
		stream, err := c.sessions.WatchSession(ctx, connect.NewRequest(&api.WatchSessionRequest{SessionID: "s1"}))
		if err != nil {
			received <- result{err: err}
			return
		}
		defer stream.Close()
		if !stream.Receive() {
			received <- result{err: fmt.Errorf("expected change: %w", stream.Err())}
			return
		}
		doc, err := api.DecodeDocument(stream.Msg().Document)
		received <- result{doc: doc, err: err}
	}()

	// The first message must be the s1 write, not the earlier s2 one.
	waitForWatchers(t, c.metrics, 1)
	upsert(t, c.sessions, "s2", testSession("Other"))
	upsert(t, c.sessions, "s1", testSession("Ana"))

	select {
	case got := <-received:
		if got.err != nil {
			t.Fatalf("WatchSession failed: %v", got.err)
		}
		if len(got.doc.Diners) != 1 || got.doc.Diners[0].Name != "Ana" {
			t.Errorf("Expected the s1 document, got %+v", got.doc.Diners)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for the s1 change")
	}
}

func TestCreateSession(t *testing.T) {
	c := setupTestServer(t, nil)

	a, err := c.sessions.CreateSession(context.Background(), connect.NewRequest(&api.CreateSessionRequest{}))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	b, err := c.sessions.CreateSession(context.Background(), connect.NewRequest(&api.CreateSessionRequest{}))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if a.Msg.SessionID == "" || a.Msg.SessionID == b.Msg.SessionID {
		t.Errorf("Expected distinct ids, got %q and %q", a.Msg.SessionID, b.Msg.SessionID)
	}

	// Nothing is stored until the first upsert
	_, err = c.sessions.GetSession(context.Background(), connect.NewRequest(&api.GetSessionRequest{
		SessionID: a.Msg.SessionID,
	}))
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func waitForWatchers(t *testing.T, m *metrics.Metrics, n float64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(m.ActiveWatchers) >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %v watchers", n)
}
