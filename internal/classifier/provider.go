package classifier

import "context"

// Provider is a single-shot chat completion backend
type Provider interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Name() string
}
