package engine

import (
	"context"
	"fmt"

	"github.com/reelforge/reelforge/internal/gen"
	"github.com/reelforge/reelforge/pkg/types"
)

// maxReferenceImages bounds the numbered image_N handles scanned on
// image generation nodes.
const maxReferenceImages = 10

// modelFor picks the backend endpoint for a generative node, falling
// back to the family default when the node names none.
func modelFor(node types.Node, fallback string) string {
	if d, ok := node.Data.(types.ModelData); ok && d.Model != "" {
		return d.Model
	}
	return fallback
}

// runGenerative implements the shared prompt handling of all generative
// executors: a missing prompt fails the node, a prompt with items fans
// out one generation per item, and a scalar prompt generates once.
func runGenerative(ctx context.Context, ec *ExecContext, node types.Node, inputs Inputs, mediaType types.OutputType, build func(prompt string) gen.Request) Result {
	prompt, ok := promptInput(inputs)
	if !ok {
		return failed(mediaType, "no prompt input connected")
	}

	if len(prompt.Items) > 0 {
		items := fanOut(ctx, ec, node.ID, mediaType, prompt.Items, func(ctx context.Context, p string) (string, error) {
			return ec.Generator.Generate(ctx, build(p))
		})
		out := batchOutput(mediaType, items)
		if ec.FailOnEmptyBatch && len(out.Items) == 0 {
			return Result{Output: out, Status: types.NodeStatusFailed, Error: "all batch items failed"}
		}
		return completed(out)
	}

	url, err := ec.Generator.Generate(ctx, build(prompt.Value))
	if err != nil {
		return failed(mediaType, err.Error())
	}
	return completed(types.NodeOutput{
		Value:   url,
		Type:    mediaType,
		Gallery: []types.GalleryItem{{Type: mediaType, URL: url, InputValue: prompt.Value}},
	})
}

// imageGenExecutor generates images from a prompt. Reference images on
// image_0..image_N handles switch the backend to its editing variant;
// they apply to scalar prompts only, fan-out elements generate from
// text alone.
type imageGenExecutor struct{}

func (imageGenExecutor) Execute(ctx context.Context, node types.Node, inputs Inputs, ec *ExecContext) Result {
	model := modelFor(node, gen.DefaultImageModel)

	var refs []string
	for i := 0; i < maxReferenceImages; i++ {
		if in, ok := inputs[fmt.Sprintf("image_%d", i)]; ok && in.Value != "" {
			refs = append(refs, in.Value)
		}
	}

	prompt, hasPrompt := promptInput(inputs)
	batch := hasPrompt && len(prompt.Items) > 0

	return runGenerative(ctx, ec, node, inputs, types.OutputImage, func(p string) gen.Request {
		req := gen.Request{Model: model, Kind: gen.KindImage, Prompt: p}
		if !batch {
			req.ImageURLs = refs
		}
		return req
	})
}

// videoGenExecutor generates videos from a prompt alone.
type videoGenExecutor struct{}

func (videoGenExecutor) Execute(ctx context.Context, node types.Node, inputs Inputs, ec *ExecContext) Result {
	model := modelFor(node, gen.DefaultVideoModel)
	return runGenerative(ctx, ec, node, inputs, types.OutputVideo, func(p string) gen.Request {
		return gen.Request{Model: model, Kind: gen.KindVideo, Prompt: p}
	})
}

// videoI2VExecutor animates a source image guided by a prompt.
type videoI2VExecutor struct{}

func (videoI2VExecutor) Execute(ctx context.Context, node types.Node, inputs Inputs, ec *ExecContext) Result {
	source, ok := inputs["image"]
	if !ok || source.Value == "" {
		return failed(types.OutputVideo, "no source image connected")
	}

	model := modelFor(node, gen.DefaultVideoI2VModel)
	return runGenerative(ctx, ec, node, inputs, types.OutputVideo, func(p string) gen.Request {
		return gen.Request{Model: model, Kind: gen.KindVideo, Prompt: p, SourceImage: source.Value}
	})
}

// videoKeyframeExecutor interpolates between a first and last frame.
// Both frames are required and shared across every fan-out element.
type videoKeyframeExecutor struct{}

func (videoKeyframeExecutor) Execute(ctx context.Context, node types.Node, inputs Inputs, ec *ExecContext) Result {
	first, firstOK := inputs["firstFrame"]
	last, lastOK := inputs["lastFrame"]
	if !firstOK || !lastOK || first.Value == "" || last.Value == "" {
		return failed(types.OutputVideo, "both first frame and last frame images are required")
	}

	model := modelFor(node, gen.DefaultVideoKeyframeModel)
	return runGenerative(ctx, ec, node, inputs, types.OutputVideo, func(p string) gen.Request {
		return gen.Request{
			Model:      model,
			Kind:       gen.KindVideo,
			Prompt:     p,
			FirstFrame: first.Value,
			LastFrame:  last.Value,
		}
	})
}
