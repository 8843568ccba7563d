package interfaces

import (
	"context"

	"github.com/ternarybob/skillet/internal/models"
)

// StatusBroadcaster is the append-only status event stream. Events for one
// importId are appended and observed in submission order; a slow subscriber
// is buffered up to a bound and then dropped, never blocking the append.
type StatusBroadcaster interface {
	// AddStatusEventAndBroadcast appends the event to the import's log,
	// assigns its sequence number, and fans it out to subscribers. Events
	// without an importId are logged only.
	AddStatusEventAndBroadcast(ctx context.Context, event *models.StatusEvent) (*models.StatusEvent, error)

	// Subscribe streams events for one importId. The returned cancel func
	// must be called to release the subscription.
	Subscribe(importID string) (<-chan models.StatusEvent, func())

	// SubscribeAll streams events for every import (used by the WebSocket hub)
	SubscribeAll() (<-chan models.StatusEvent, func())

	// History returns the buffered events for an importId in order
	History(importID string) []models.StatusEvent

	// Close drops all subscribers
	Close() error
}
