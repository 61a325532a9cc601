package genai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AKillionVoice/voicepipe/internal/models"
)

// fakeOpenAI serves canned JSON for the endpoints the client uses.
func fakeOpenAI(t *testing.T, chatBody, embedBody string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/chat/completions":
			w.Write([]byte(chatBody))
		case "/embeddings":
			w.Write([]byte(embedBody))
		default:
			t.Errorf("unexpected request path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(""); err != ErrNoAPIKey {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestGenerate(t *testing.T) {
	srv := fakeOpenAI(t,
		`{"choices":[{"message":{"role":"assistant","content":"  Hello there. "}}]}`,
		`{}`)
	defer srv.Close()

	client, err := NewClient("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	directive := models.Directive{SystemContext: "be brief", MaxTokens: 60, Temperature: 0.7}
	history := []models.Message{
		{Role: models.RoleCaller, Text: "hi"},
		{Role: models.RoleAgent, Text: "hello"},
	}
	out, err := client.Generate(context.Background(), directive, history)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if out != "Hello there." {
		t.Errorf("expected trimmed reply, got %q", out)
	}
}

func TestGenerateNoChoices(t *testing.T) {
	srv := fakeOpenAI(t, `{"choices":[]}`, `{}`)
	defer srv.Close()

	client, err := NewClient("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := client.Generate(context.Background(), models.Directive{SystemContext: "x"}, nil); err == nil {
		t.Error("expected error when completion returns no choices, got nil")
	}
}

func TestEmbed(t *testing.T) {
	srv := fakeOpenAI(t, `{}`,
		`{"data":[{"embedding":[0.25,-0.5,1.0]}]}`)
	defer srv.Close()

	client, err := NewClient("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	vec, err := client.Embed(context.Background(), "appointment scheduling")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.25 {
		t.Errorf("unexpected embedding vector %v", vec)
	}
}
