package catalog

import (
	"context"

	"github.com/volkaert/simple-event-broker2/internal/domain"
)

// Lookup is the read side of the catalog. A missing entity is (nil, nil);
// a non-nil error always means the catalog could not be reached or read.
type Lookup interface {
	GetEventType(ctx context.Context, code string) (*domain.EventType, error)
	GetPublication(ctx context.Context, code string) (*domain.Publication, error)
	GetSubscription(ctx context.Context, code string) (*domain.Subscription, error)
	ListEventTypes(ctx context.Context) ([]domain.EventType, error)
	ListPublications(ctx context.Context) ([]domain.Publication, error)
	ListSubscriptions(ctx context.Context) ([]domain.Subscription, error)
}
