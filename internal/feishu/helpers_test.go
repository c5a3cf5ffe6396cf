package feishu

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

// fakeLarkServer stands in for the Lark open platform.
type fakeLarkServer struct {
	*httptest.Server

	tokenCalls atomic.Int32

	mu          sync.Mutex
	tokenBody   string
	tokenCode   int
	replyPaths  []string
	replyAuth   []string
	replyBodies [][]byte
	replyBody   string
}

func newFakeLarkServer(t *testing.T) *fakeLarkServer {
	t.Helper()
	f := &fakeLarkServer{
		tokenBody: `{"code":0,"msg":"ok","tenant_access_token":"t-abc","expire":7200}`,
		tokenCode: http.StatusOK,
		replyBody: `{"code":0,"msg":"success","data":{"message_id":"om_reply"}}`,
	}
	mux := http.NewServeMux()
	mux.HandleFunc(tenantAccessTokenPath, func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		f.mu.Lock()
		code, body := f.tokenCode, f.tokenBody
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = io.WriteString(w, body)
	})
	mux.HandleFunc("/open-apis/im/v1/messages/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.replyPaths = append(f.replyPaths, r.URL.Path)
		f.replyAuth = append(f.replyAuth, r.Header.Get("Authorization"))
		f.replyBodies = append(f.replyBodies, body)
		resp := f.replyBody
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, resp)
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeLarkServer) setToken(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenCode = status
	f.tokenBody = body
}

func (f *fakeLarkServer) setReply(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replyBody = body
}

func (f *fakeLarkServer) config() Config {
	return Config{
		AppID:     "cli_test",
		AppSecret: "app-secret-value",
		BaseURL:   f.URL,
	}
}

type capturedReply struct {
	Content string `json:"content"`
	MsgType string `json:"msg_type"`
	UUID    string `json:"uuid"`
}

func (f *fakeLarkServer) reply(t *testing.T, i int) capturedReply {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.replyBodies) {
		t.Fatalf("reply %d not captured, got %d", i, len(f.replyBodies))
	}
	var out capturedReply
	if err := json.Unmarshal(f.replyBodies[i], &out); err != nil {
		t.Fatalf("decode reply body: %v", err)
	}
	return out
}

func (f *fakeLarkServer) replyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.replyBodies)
}

func (f *fakeLarkServer) replyRequest(i int) (path, auth string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.replyPaths) {
		return "", ""
	}
	return f.replyPaths[i], f.replyAuth[i]
}
