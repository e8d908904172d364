package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/liliang-cn/doclens/internal/collaborator"
	"github.com/liliang-cn/doclens/internal/config"
	"github.com/liliang-cn/doclens/internal/domain"
	"github.com/liliang-cn/doclens/internal/metrics"
	"github.com/liliang-cn/doclens/internal/repository"
	"github.com/liliang-cn/doclens/internal/service"
)

// answerService fakes the external /query, /upload-file and /listen endpoints
func answerService(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		var req domain.QueryRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Query == "fail" {
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{"detail":"model offline"}`)
			return
		}
		flusher := w.(http.Flusher)
		for _, line := range []string{
			`{"data":"Travel is "}`,
			`{"data":[{"chunk_id":"c1","document_id":"d1","filename":"policy.pdf","page_number":7,"chunk_text":"Travel","score":0.9}]}`,
			`{"data":"covered [1]."}`,
		} {
			io.WriteString(w, line+"\n")
			flusher.Flush()
		}
	})
	mux.HandleFunc("/upload-file", func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("file"); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/listen", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			msgType, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType == websocket.BinaryMessage {
				conn.WriteMessage(websocket.TextMessage, []byte(`{"transcript":"hello","is_final":true}`))
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, apiKey string) *httptest.Server {
	t.Helper()
	upstream := answerService(t)

	cfg := &config.Config{
		Collaborator: config.CollaboratorConfig{
			BaseURL:        upstream.URL,
			QueryPath:      "/query",
			UploadPath:     "/upload-file",
			ListenPath:     "/listen",
			TopK:           5,
			RequestTimeout: 5 * time.Second,
			ReadBufferSize: 16,
		},
		Upload: config.UploadConfig{MaxSizeMB: 1, AllowedTypes: []string{"pdf", "md"}},
	}

	db, err := repository.NewDB(filepath.Join(t.TempDir(), "doclens.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m := metrics.New()
	client, err := collaborator.NewClient(cfg.Collaborator, nil, m)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	sessionRepo := repository.NewSessionRepository(db)
	uploadRepo := repository.NewUploadRepository(db)
	router := SetupRouter(Services{
		Chat:   service.NewChatService(cfg, sessionRepo, client, nil, m),
		Upload: service.NewUploadService(cfg, uploadRepo, client, nil, m),
		Listen: service.NewListenService(service.CollaboratorListener(client), nil, m),
		Admin:  service.NewAdminService(sessionRepo, uploadRepo),
	}, RouterConfig{APIKey: apiKey, AllowOrigins: []string{"http://app.local"}, Metrics: m.Handler()})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, url, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

type sseEvent struct {
	name string
	data service.AnswerEvent
}

func readSSE(t *testing.T, r io.Reader) []sseEvent {
	t.Helper()
	var events []sseEvent
	var current sseEvent
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &current.data); err != nil {
				t.Fatalf("bad SSE data %q: %v", line, err)
			}
		case line == "":
			if current.name != "" {
				events = append(events, current)
			}
			current = sseEvent{}
		}
	}
	return events
}

func createSession(t *testing.T, base string) string {
	t.Helper()
	resp := doJSON(t, "POST", base+"/api/sessions", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var session domain.Session
	json.NewDecoder(resp.Body).Decode(&session)
	return session.ID
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, "")

	resp := doJSON(t, "GET", srv.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, "secret")

	resp := doJSON(t, "POST", srv.URL+"/api/sessions", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without key, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest("POST", srv.URL+"/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer secret")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer authed.Body.Close()
	if authed.StatusCode != http.StatusCreated {
		t.Errorf("expected 201 with bearer key, got %d", authed.StatusCode)
	}

	if resp := doJSON(t, "GET", srv.URL+"/health", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("expected health to skip auth, got %d", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, "")

	req, _ := http.NewRequest("OPTIONS", srv.URL+"/api/sessions", nil)
	req.Header.Set("Origin", "http://app.local")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "http://app.local" {
		t.Errorf("unexpected allow origin %q", resp.Header.Get("Access-Control-Allow-Origin"))
	}
}

func TestQueryStreamsAnswer(t *testing.T) {
	srv := newTestServer(t, "")
	sessionID := createSession(t, srv.URL)

	resp := doJSON(t, "POST", srv.URL+"/api/sessions/"+sessionID+"/query", map[string]any{"query": "Is travel covered?"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("expected event stream, got %q", ct)
	}

	events := readSSE(t, resp.Body)
	var names []string
	for _, ev := range events {
		names = append(names, ev.name)
	}
	if strings.Join(names, ",") != "delta,citations,delta,done" {
		t.Fatalf("unexpected events %v", names)
	}

	done := events[len(events)-1].data.Message
	if done == nil || done.Text != "Travel is covered [1]." {
		t.Fatalf("unexpected final message %+v", done)
	}
	if len(done.Citations) != 1 || done.Citations[0].DocumentName != "policy.pdf" || *done.Citations[0].PageNumber != 7 {
		t.Errorf("unexpected citations %+v", done.Citations)
	}
	if done.Rendered == nil || len(done.Rendered.References) != 1 || done.Rendered.References[0].Key == nil {
		t.Fatalf("expected one resolved reference, got %+v", done.Rendered)
	}

	// Hover the reference, then read the messages back
	key := done.Rendered.References[0].Key
	hover := doJSON(t, "PUT", srv.URL+"/api/sessions/"+sessionID+"/hover", key)
	if hover.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from hover, got %d", hover.StatusCode)
	}

	messages := doJSON(t, "GET", srv.URL+"/api/sessions/"+sessionID+"/messages", nil)
	var body struct {
		Messages []service.MessageView `json:"messages"`
	}
	if err := json.NewDecoder(messages.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode messages: %v", err)
	}
	if len(body.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(body.Messages))
	}
	if !strings.Contains(body.Messages[1].Rendered.HTML, "Page 7") {
		t.Errorf("expected popover with page in %s", body.Messages[1].Rendered.HTML)
	}

	unhover := doJSON(t, "DELETE", srv.URL+"/api/sessions/"+sessionID+"/hover", key)
	var active struct {
		Active *domain.HoverKey `json:"active"`
	}
	json.NewDecoder(unhover.Body).Decode(&active)
	if active.Active != nil {
		t.Errorf("expected no active key, got %+v", active.Active)
	}

	metricsResp := doJSON(t, "GET", srv.URL+"/metrics", nil)
	raw, _ := io.ReadAll(metricsResp.Body)
	if !strings.Contains(string(raw), `doclens_queries_total{result="complete"} 1`) {
		t.Errorf("expected completed query in metrics")
	}
}

func TestQueryErrorEvent(t *testing.T) {
	srv := newTestServer(t, "")
	sessionID := createSession(t, srv.URL)

	resp := doJSON(t, "POST", srv.URL+"/api/sessions/"+sessionID+"/query", map[string]any{"query": "fail"})
	events := readSSE(t, resp.Body)
	if len(events) != 1 || events[0].name != "error" {
		t.Fatalf("expected a single error event, got %+v", events)
	}
	if events[0].data.Error != "Error: model offline" {
		t.Errorf("unexpected error text %q", events[0].data.Error)
	}
}

func TestQueryValidation(t *testing.T) {
	srv := newTestServer(t, "")

	if resp := doJSON(t, "POST", srv.URL+"/api/sessions/missing/query", map[string]any{"query": "q"}); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown session, got %d", resp.StatusCode)
	}

	sessionID := createSession(t, srv.URL)
	if resp := doJSON(t, "POST", srv.URL+"/api/sessions/"+sessionID+"/query", map[string]any{}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without query, got %d", resp.StatusCode)
	}
}

func uploadFile(t *testing.T, base, filename, content string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", filename)
	io.WriteString(part, content)
	mw.Close()

	resp, err := http.Post(base+"/api/upload-file", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestUploadAndHistory(t *testing.T) {
	srv := newTestServer(t, "")

	if resp := uploadFile(t, srv.URL, "guide.md", "# Guide"); resp.StatusCode != http.StatusCreated {
		t.Errorf("expected 201, got %d", resp.StatusCode)
	}
	if resp := uploadFile(t, srv.URL, "tool.exe", "MZ"); resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("expected 415, got %d", resp.StatusCode)
	}

	resp := doJSON(t, "GET", srv.URL+"/api/uploads", nil)
	var list domain.UploadListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode uploads: %v", err)
	}
	if list.Total != 2 || list.Uploads[0].Filename != "tool.exe" || list.Uploads[0].Status != domain.UploadStatusFailed {
		t.Errorf("unexpected upload history %+v", list)
	}

	stats := doJSON(t, "GET", srv.URL+"/api/admin/stats", nil)
	var s domain.Stats
	json.NewDecoder(stats.Body).Decode(&s)
	if s.TotalUploads != 2 || s.FailedUploads != 1 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestListenRelay(t *testing.T) {
	srv := newTestServer(t, "")

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/listen", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0, 1, 2}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var update struct {
		Transcript string `json:"transcript"`
		IsFinal    bool   `json:"is_final"`
		Text       string `json:"text"`
	}
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if update.Text != "hello" || !update.IsFinal {
		t.Errorf("unexpected update %+v", update)
	}
}

func TestListenRejectsForeignOrigin(t *testing.T) {
	srv := newTestServer(t, "")

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/listen", header)
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %+v", resp)
	}
}
