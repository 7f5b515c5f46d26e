package llm

import "context"

// Transport is the black-box generative backend. Implementations may raise
// arbitrary transport errors; the retry layer inspects them for transience.
type Transport interface {
	// GenerateText sends a prompt to the text-completion endpoint and
	// returns the model's raw text.
	GenerateText(ctx context.Context, prompt string) (string, error)

	// GenerateVision sends a prompt plus one or more encoded page images to
	// the vision endpoint and returns the model's raw text.
	GenerateVision(ctx context.Context, prompt string, images [][]byte) (string, error)
}
