package anthropic

import (
	"context"

	"github.com/rotisserie/eris"
)

// BuildCachedSystemBlocks constructs system content blocks with a 1-hour
// cache breakpoint. Every extraction request in a run shares the same
// schema-derived system prompt, so the prompt is written to the cache once
// and read back for each subsequent frame or candidate image; the 1-hour
// TTL outlives batch turnaround.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: "1h",
			},
		},
	}
}

// PrimerRequest sends one sequential message to warm the prompt cache
// before a batch is submitted, so the batch items hit the warm cache
// instead of each writing it. The request should carry system blocks from
// BuildCachedSystemBlocks; the response content is usable but callers may
// discard it.
func PrimerRequest(ctx context.Context, client Client, req MessageRequest) (*MessageResponse, error) {
	resp, err := client.CreateMessage(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: primer request")
	}
	return resp, nil
}
