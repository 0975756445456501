package summarize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOllamaClient_Summarize(t *testing.T) {
	var got chatRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(chatResponse{
			Message: chatMessage{Role: "assistant", Content: `{"priority":"high"}`},
		})
	}))
	defer ts.Close()

	c := NewOllamaClient(ts.URL+"/", "gemma:2b", 5*time.Second)
	reply, err := c.Summarize(context.Background(), "be brief", "my leg is broken")
	require.NoError(t, err)
	require.Equal(t, `{"priority":"high"}`, reply)

	require.Equal(t, "gemma:2b", got.Model)
	require.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	require.Equal(t, chatMessage{Role: "system", Content: "be brief"}, got.Messages[0])
	require.Equal(t, chatMessage{Role: "user", Content: "my leg is broken"}, got.Messages[1])
}

func TestOllamaClient_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'gemma:2b' not found"}`))
	}))
	defer ts.Close()

	c := NewOllamaClient(ts.URL, "gemma:2b", 5*time.Second)
	_, err := c.Summarize(context.Background(), "x", "y")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

func TestOllamaClient_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c := NewOllamaClient(url, "gemma:2b", time.Second)
	_, err := c.Summarize(context.Background(), "x", "y")
	require.Error(t, err)
}

func TestOllamaClient_ContextCancel(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewOllamaClient(ts.URL, "gemma:2b", time.Minute)
	_, err := c.Summarize(ctx, "x", "y")
	require.Error(t, err)
}

func TestFormatReport(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{
			name:  "Plain JSON",
			reply: `{"summary":"leg injury","priority":"HIGH","first_aid":"immobilize"}`,
			want:  "{\n    \"first_aid\": \"immobilize\",\n    \"priority\": \"HIGH\",\n    \"summary\": \"leg injury\"\n}",
		},
		{
			name:  "Fenced JSON",
			reply: "```json\n{\"priority\": 1}\n```",
			want:  "{\n    \"priority\": 1\n}",
		},
		{
			name:  "Text And Numbers Kept As Sent",
			reply: `{"first_aid":"splint & elevate","summary":"leg <broken>","id":12345678901234567890,"weight":72.5}`,
			want:  "{\n    \"first_aid\": \"splint & elevate\",\n    \"id\": 12345678901234567890,\n    \"summary\": \"leg <broken>\",\n    \"weight\": 72.5\n}",
		},
		{
			name:  "Nested Object",
			reply: `{"vitals":{"pulse":110,"bp":"90/60"},"priority":"HIGH"}`,
			want:  "{\n    \"priority\": \"HIGH\",\n    \"vitals\": {\n        \"bp\": \"90/60\",\n        \"pulse\": 110\n    }\n}",
		},
		{
			name:  "Trailing Text After Object",
			reply: `{"priority":"HIGH"} and stay calm`,
			want:  `{"priority":"HIGH"} and stay calm`,
		},
		{
			name:  "Free Text",
			reply: "Stay calm, help is coming.",
			want:  "Stay calm, help is coming.",
		},
		{
			name:  "JSON Array Is Not A Report",
			reply: `["a","b"]`,
			want:  `["a","b"]`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatReport(tt.reply); got != tt.want {
				t.Errorf("FormatReport() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFunc(t *testing.T) {
	var s Summarizer = Func(func(_ context.Context, instruction, text string) (string, error) {
		return strings.ToUpper(text), nil
	})
	out, err := s.Summarize(context.Background(), "", "sos")
	require.NoError(t, err)
	require.Equal(t, "SOS", out)
}
