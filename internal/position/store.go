package position

import "context"

// Store is the persistence port for positions. ListActivePositions returns
// every non-terminal position (PENDING, OPEN, CLOSING); callers that only
// want OPEN filter on Status themselves.
type Store interface {
	SavePosition(ctx context.Context, p *Position) error
	GetPosition(ctx context.Context, id string) (*Position, error)
	ListActivePositions(ctx context.Context) ([]*Position, error)
	CountOpenPositions(ctx context.Context) (int, error)
}
