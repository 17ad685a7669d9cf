package ebookbot

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLocalClientImageGenerate(t *testing.T) {
	want := pngBytes(2, 2)
	var got SDWebUIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sdapi/v1/txt2img" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(SDWebUIResponse{Images: []string{base64.StdEncoding.EncodeToString(want)}})
	}))
	defer srv.Close()

	client := NewLocalClient(srv.URL+"/", time.Second)
	data, err := client.ImageGenerate(context.Background(), "a red fox", ImageParams{Model: "sdxl"})
	if err != nil {
		t.Fatalf("ImageGenerate() error = %v", err)
	}
	if string(data) != string(want) {
		t.Error("ImageGenerate() returned different bytes")
	}
	if got.Prompt != "a red fox" || got.Steps == 0 || got.Width == 0 {
		t.Errorf("request = %+v, want prompt and defaults filled", got)
	}
	if got.OverrideSettings["sd_model_checkpoint"] != "sdxl" {
		t.Errorf("override settings = %v", got.OverrideSettings)
	}
}

func TestLocalClientErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantTransient bool
	}{
		{"server error", http.StatusServiceUnavailable, "down", true},
		{"rate limited", http.StatusTooManyRequests, "slow down", true},
		{"bad request", http.StatusBadRequest, "bad", false},
		{"no images", http.StatusOK, `{"images": []}`, false},
		{"api error", http.StatusOK, `{"error": "model not loaded"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewLocalClient(srv.URL, time.Second).ImageGenerate(context.Background(), "p", ImageParams{})
			if err == nil {
				t.Fatal("ImageGenerate() = nil error")
			}
			if IsTransient(err) != tt.wantTransient {
				t.Errorf("IsTransient(%v) = %v, want %v", err, IsTransient(err), tt.wantTransient)
			}
		})
	}
}

func TestNewImageClient(t *testing.T) {
	if _, err := NewImageClient(ImageConfig{Backend: "horde"}); err != nil {
		t.Errorf("horde backend: %v", err)
	}
	if c, err := NewImageClient(ImageConfig{Backend: "sdwebui", SDWebUIURL: "http://x"}); err != nil {
		t.Errorf("sdwebui backend: %v", err)
	} else if _, ok := c.(*LocalClient); !ok {
		t.Errorf("sdwebui backend = %T, want *LocalClient", c)
	}
	if _, err := NewImageClient(ImageConfig{Backend: "other"}); err == nil {
		t.Error("unknown backend accepted")
	}
}

func TestTransientStatus(t *testing.T) {
	for code, want := range map[int]bool{200: false, 400: false, 404: false, 408: true, 409: true, 429: true, 500: true, 529: true} {
		if got := transientStatus(code); got != want {
			t.Errorf("transientStatus(%d) = %v, want %v", code, got, want)
		}
	}
	if errors.Is(classifyAPIError(errors.New("boom")), ErrTransient) {
		t.Error("plain error classified as transient")
	}
	if !errors.Is(classifyAPIError(context.DeadlineExceeded), ErrTransient) {
		t.Error("deadline not classified as transient")
	}
}
