package llmclient

import "context"

// Backend opens one streamed reply for a given turn. Implementations must
// be safe to call repeatedly (one call per turn) and must honor ctx
// cancellation by aborting the underlying transport promptly.
type Backend interface {
	Open(ctx context.Context, systemPrompt string, history []Message, userText string) (*TokenStream, error)
}
