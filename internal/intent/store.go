package intent

import "context"

// Store is the persistence port for intents. Save is an upsert keyed by ID;
// List with an empty status returns everything.
type Store interface {
	SaveIntent(ctx context.Context, it *Intent) error
	GetIntent(ctx context.Context, id string) (*Intent, error)
	ListIntents(ctx context.Context, status Status) ([]*Intent, error)
}
