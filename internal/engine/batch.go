package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/reelforge/reelforge/pkg/types"
)

// fanOut runs generate once per prompt, in parallel, bounded by the
// context's BatchConcurrency. Each element fails independently; the
// returned slice is aligned with prompts. Completed items are streamed
// to the observer as they land.
func fanOut(ctx context.Context, ec *ExecContext, nodeID string, mediaType types.OutputType, prompts []string, generate func(ctx context.Context, prompt string) (string, error)) []types.GalleryItem {
	items := make([]types.GalleryItem, len(prompts))

	var sem chan struct{}
	if ec.BatchConcurrency > 0 {
		sem = make(chan struct{}, ec.BatchConcurrency)
	}

	var wg sync.WaitGroup
	for i, prompt := range prompts {
		wg.Add(1)
		go func(i int, prompt string) {
			defer wg.Done()

			if sem != nil {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					items[i] = types.GalleryItem{Type: mediaType, InputValue: prompt, Error: ctx.Err().Error()}
					return
				}
			}

			url, err := generateSafe(ctx, prompt, generate)
			item := types.GalleryItem{Type: mediaType, URL: url, InputValue: prompt}
			if err != nil {
				item.URL = ""
				item.Error = err.Error()
			}
			items[i] = item
			ec.Observer.GalleryItem(nodeID, i, len(prompts), item)
		}(i, prompt)
	}
	wg.Wait()

	return items
}

// generateSafe converts a panic in a fan-out worker into an element
// error, keeping per-item failure isolation.
func generateSafe(ctx context.Context, prompt string, generate func(ctx context.Context, prompt string) (string, error)) (url string, err error) {
	defer func() {
		if r := recover(); r != nil {
			url = ""
			err = fmt.Errorf("generation panic: %v", r)
		}
	}()
	return generate(ctx, prompt)
}

// batchOutput folds fan-out items into a node output: Items holds the
// successful URLs in prompt order and Value mirrors the first success.
func batchOutput(mediaType types.OutputType, items []types.GalleryItem) types.NodeOutput {
	var urls []string
	for _, it := range items {
		if it.URL != "" {
			urls = append(urls, it.URL)
		}
	}

	out := types.NodeOutput{Type: mediaType, Items: urls, Gallery: items}
	if len(urls) > 0 {
		out.Value = urls[0]
	}
	return out
}
