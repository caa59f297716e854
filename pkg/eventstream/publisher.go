// Package eventstream defines relay lifecycle events and the publishers that
// ship them to an event stream backend.
package eventstream

import "context"

// Publisher publishes relay events to an event stream backend.
type Publisher interface {
	PublishRelay(ctx context.Context, event *RelayCompletedEvent) error
	Close() error
}
