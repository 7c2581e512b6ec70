// Package gen provides the client used to invoke remote generative model
// backends for image and video synthesis.
package gen

import (
	"context"
	"errors"
)

// Kind selects which media a generation request produces.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Default model endpoints used when a node does not name one.
const (
	DefaultImageModel         = "fal-ai/nano-banana"
	DefaultVideoModel         = "fal-ai/veo3.1"
	DefaultVideoI2VModel      = "fal-ai/veo3.1/image-to-video"
	DefaultVideoKeyframeModel = "fal-ai/veo3.1/first-last-frame-to-video"
)

// Sentinel errors surfaced to executors.
var (
	ErrNoMedia      = errors.New("backend returned no media")
	ErrMissingFrame = errors.New("both first frame and last frame images are required")
)

// Request describes one generation call. Exactly one prompt resolves to
// one output URL; batching is the caller's concern.
type Request struct {
	// Model is the backend endpoint path, e.g. "fal-ai/nano-banana".
	Model string
	// Kind selects image or video output.
	Kind Kind
	// Prompt is the fully interpolated text prompt.
	Prompt string
	// ImageURLs carries reference images for image editing.
	ImageURLs []string
	// SourceImage is the input frame for image-to-video generation.
	SourceImage string
	// FirstFrame and LastFrame bound keyframe interpolation.
	FirstFrame string
	LastFrame  string
}

// Generator produces one media URL per request. Implementations must be
// safe for concurrent use; batch fan-out calls Generate from many
// goroutines at once.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Rehoster copies remote media to durable storage and returns the new
// URL. Implementations may return the input URL unchanged.
type Rehoster interface {
	Rehost(ctx context.Context, url, ext string) (string, error)
}

// PassthroughRehoster returns source URLs unchanged. Used when no media
// store is configured.
type PassthroughRehoster struct{}

func (PassthroughRehoster) Rehost(_ context.Context, url, _ string) (string, error) {
	return url, nil
}
