package gen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordingRehoster struct {
	calls []string
}

func (r *recordingRehoster) Rehost(_ context.Context, url, ext string) (string, error) {
	r.calls = append(r.calls, url+"."+ext)
	return "https://store.example/" + ext + "/rehosted", nil
}

func TestClientGenerateImage(t *testing.T) {
	var gotPath string
	var gotBody apiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"images": []map[string]string{{"url": "https://cdn.example/img.png"}},
		})
	}))
	defer srv.Close()

	rehost := &recordingRehoster{}
	c := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "k"}, rehost, nil)

	url, err := c.Generate(context.Background(), Request{
		Model:  DefaultImageModel,
		Kind:   KindImage,
		Prompt: "a red fox",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if url != "https://store.example/png/rehosted" {
		t.Errorf("url = %q", url)
	}
	if gotPath != "/"+DefaultImageModel {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody.Prompt != "a red fox" {
		t.Errorf("prompt = %q", gotBody.Prompt)
	}
	if len(rehost.calls) != 1 {
		t.Errorf("rehost calls = %v", rehost.calls)
	}
}

func TestClientGenerateImageEditModel(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]any{
			"images": []map[string]string{{"url": "https://cdn.example/img.png"}},
		})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL}, nil, nil)
	_, err := c.Generate(context.Background(), Request{
		Model:     DefaultImageModel,
		Kind:      KindImage,
		Prompt:    "add a hat",
		ImageURLs: []string{"https://cdn.example/base.png"},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasSuffix(gotPath, editSuffix) {
		t.Errorf("expected edit endpoint, got %q", gotPath)
	}
}

func TestClientGenerateVideo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"video": map[string]string{"url": "https://cdn.example/out.mp4"},
		})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL}, nil, nil)
	url, err := c.Generate(context.Background(), Request{
		Model:  DefaultVideoModel,
		Kind:   KindVideo,
		Prompt: "waves at dusk",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if url != "https://cdn.example/out.mp4" {
		t.Errorf("url = %q", url)
	}
}

func TestClientGenerateNoMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"images": []any{}})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL}, nil, nil)
	_, err := c.Generate(context.Background(), Request{Model: DefaultImageModel, Kind: KindImage, Prompt: "x"})
	if !errors.Is(err, ErrNoMedia) {
		t.Errorf("expected ErrNoMedia, got %v", err)
	}
}

func TestClientGenerateBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"detail": "prompt rejected"})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL}, nil, nil)
	_, err := c.Generate(context.Background(), Request{Model: DefaultImageModel, Kind: KindImage, Prompt: "x"})
	if err == nil || !strings.Contains(err.Error(), "prompt rejected") {
		t.Errorf("expected backend detail in error, got %v", err)
	}
}

func TestClientGenerateKeyframeValidation(t *testing.T) {
	c := NewClient(ClientConfig{BaseURL: "http://unused"}, nil, nil)
	_, err := c.Generate(context.Background(), Request{
		Model:      DefaultVideoKeyframeModel,
		Kind:       KindVideo,
		Prompt:     "x",
		FirstFrame: "https://cdn.example/a.png",
	})
	if !errors.Is(err, ErrMissingFrame) {
		t.Errorf("expected ErrMissingFrame, got %v", err)
	}
}
