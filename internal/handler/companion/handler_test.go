package companion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
)

// fakeService 以固定回复替代真实模型调用。
type fakeService struct {
	streaming   bool
	reply       string
	chunks      []string
	err         error
	lastMessage string
}

func (f *fakeService) StreamingEnabled() bool {
	return f.streaming
}

func (f *fakeService) Respond(ctx context.Context, message string) (*schema.Message, error) {
	f.lastMessage = message
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeService) Stream(ctx context.Context, message string) (*schema.StreamReader[*schema.Message], error) {
	f.lastMessage = message
	if f.err != nil {
		return nil, f.err
	}

	messages := make([]*schema.Message, 0, len(f.chunks))
	for _, chunk := range f.chunks {
		messages = append(messages, schema.AssistantMessage(chunk, nil))
	}
	return schema.StreamReaderFromArray(messages), nil
}

func newTestServer(t *testing.T, svc CompanionService) *httptest.Server {
	t.Helper()

	r := chi.NewRouter()
	New(svc).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestChatRespondsWithReply(t *testing.T) {
	svc := &fakeService{reply: "深呼吸，慢慢来。"}
	srv := newTestServer(t, svc)

	resp, err := http.Post(srv.URL+"/companion/chat", "application/json",
		strings.NewReader(`{"message":"我最近睡不好"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if payload["reply"] != "深呼吸，慢慢来。" {
		t.Fatalf("unexpected reply %q", payload["reply"])
	}
	if svc.lastMessage != "我最近睡不好" {
		t.Fatalf("service received wrong message %q", svc.lastMessage)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	srv := newTestServer(t, &fakeService{})

	resp, err := http.Post(srv.URL+"/companion/chat", "application/json",
		strings.NewReader(`{"message":""}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestChatRejectsInvalidBody(t *testing.T) {
	srv := newTestServer(t, &fakeService{})

	resp, err := http.Post(srv.URL+"/companion/chat", "application/json",
		strings.NewReader(`{not json`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestChatReportsGenerationFailure(t *testing.T) {
	srv := newTestServer(t, &fakeService{err: errors.New("model unavailable")})

	resp, err := http.Post(srv.URL+"/companion/chat", "application/json",
		strings.NewReader(`{"message":"hi"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}

func readSSEEvents(t *testing.T, body io.Reader) []StreamResponse {
	t.Helper()

	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("failed to read SSE body: %v", err)
	}

	var events []StreamResponse
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var evt StreamResponse
		if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &evt); err != nil {
			t.Fatalf("invalid SSE payload %q: %v", line, err)
		}
		events = append(events, evt)
	}
	return events
}

func TestStreamEmitsDeltasAndFinalMessage(t *testing.T) {
	svc := &fakeService{streaming: true, chunks: []string{"慢慢", "呼吸"}}
	srv := newTestServer(t, svc)

	resp, err := http.Get(srv.URL + "/companion/stream?message=" + "hi")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); !strings.HasPrefix(got, "text/event-stream") {
		t.Fatalf("unexpected content type %q", got)
	}

	events := readSSEEvents(t, resp.Body)
	if len(events) == 0 || events[0].Event != "start" {
		t.Fatalf("stream must open with a start event, got %+v", events)
	}

	var deltas []string
	var message string
	for _, evt := range events {
		switch evt.Event {
		case "delta":
			deltas = append(deltas, evt.Content)
		case "message":
			message = evt.Content
		}
	}
	if len(deltas) != 2 || deltas[0] != "慢慢" || deltas[1] != "呼吸" {
		t.Fatalf("unexpected deltas %v", deltas)
	}
	if message != "慢慢呼吸" {
		t.Fatalf("unexpected merged message %q", message)
	}

	last := events[len(events)-1]
	if last.Event != "end" || !last.Finished {
		t.Fatalf("stream must finish with an end event, got %+v", last)
	}
}

func TestStreamFallsBackWhenStreamingDisabled(t *testing.T) {
	svc := &fakeService{streaming: false, reply: "保持节奏"}
	srv := newTestServer(t, svc)

	resp, err := http.Get(srv.URL + "/companion/stream?message=hi")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	events := readSSEEvents(t, resp.Body)

	var sequence []string
	for _, evt := range events {
		sequence = append(sequence, evt.Event)
	}
	want := []string{"start", "message", "end"}
	if len(sequence) != len(want) {
		t.Fatalf("unexpected event sequence %v", sequence)
	}
	for i := range want {
		if sequence[i] != want[i] {
			t.Fatalf("unexpected event sequence %v", sequence)
		}
	}
}

func TestStreamRequiresMessageParameter(t *testing.T) {
	srv := newTestServer(t, &fakeService{})

	resp, err := http.Get(srv.URL + "/companion/stream")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
