package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ollama/ollama/api"
)

// chatServer answers /api/chat with a single non-streamed response and
// records the request for inspection.
func chatServer(t *testing.T, content string) (*httptest.Server, *api.ChatRequest) {
	t.Helper()
	var captured api.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		resp := api.ChatResponse{
			Model:   captured.Model,
			Message: api.Message{Role: "assistant", Content: content},
			Done:    true,
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func testImageB64() string {
	return base64.StdEncoding.EncodeToString([]byte("fake image bytes"))
}

func TestSimpleQuery(t *testing.T) {
	srv, captured := chatServer(t, "two bright cells near the center")
	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	reply, err := c.SimpleQuery(context.Background(), "llava", "what do you see?", testImageB64())
	if err != nil {
		t.Fatal(err)
	}
	if reply != "two bright cells near the center" {
		t.Errorf("reply = %q", reply)
	}

	if captured.Model != "llava" {
		t.Errorf("model = %q", captured.Model)
	}
	if captured.Stream == nil || *captured.Stream {
		t.Error("expected stream disabled")
	}
	if len(captured.Messages) != 1 {
		t.Fatalf("got %d messages", len(captured.Messages))
	}
	msg := captured.Messages[0]
	if msg.Role != "user" || msg.Content != "what do you see?" {
		t.Errorf("message %+v", msg)
	}
	if len(msg.Images) != 1 || string(msg.Images[0]) != "fake image bytes" {
		t.Error("image bytes not attached to the message")
	}
}

func TestProposeRegionsParsesReply(t *testing.T) {
	srv, _ := chatServer(t, `{"image_description": "one cell",
		"regions": [{"label": "cell", "confidence": 0.9,
		"x": 0.1, "y": 0.2, "width": 0.3, "height": 0.3}]}`)
	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	result, err := c.ProposeRegions(context.Background(), "llava", "find objects", testImageB64())
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Regions) != 1 {
		t.Fatalf("got %d regions", len(result.Regions))
	}
	if result.Regions[0].Label != "cell" {
		t.Errorf("label = %q", result.Regions[0].Label)
	}
}

func TestProposeRegionsMiniCPMOptions(t *testing.T) {
	srv, captured := chatServer(t, `{"regions": []}`)
	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.ProposeRegions(context.Background(), "minicpm-v4.5", "find objects", testImageB64()); err != nil {
		t.Fatal(err)
	}
	if captured.Options["num_ctx"] == nil {
		t.Error("expected sampling options for minicpm-v4 models")
	}
}

func TestProposeRegionsEmptyReply(t *testing.T) {
	srv, _ := chatServer(t, "")
	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.ProposeRegions(context.Background(), "llava", "find objects", testImageB64()); err == nil {
		t.Error("expected error for empty model reply")
	}
}

func TestChatRejectsBadBase64(t *testing.T) {
	srv, _ := chatServer(t, "unused")
	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.SimpleQuery(context.Background(), "llava", "hi", "not base64!!"); err == nil {
		t.Error("expected error for invalid base64 image")
	}
}

func TestNewClientBadURL(t *testing.T) {
	if _, err := NewClient("://bad"); err == nil {
		t.Error("expected error for malformed URL")
	}
}
