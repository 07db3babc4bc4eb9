/*
Package store abstracts the shared broker every fleet member synchronizes
through.

Two capabilities are separated: Store covers keyed state (scalars, bounded
ordered lists, sets) and Bus covers channel publish / pattern subscribe.
The production implementation is Redis; an in-process implementation backs
unit tests and single-node development.
*/
package store

import "context"

// Store is the minimum keyed-state contract the chat core relies on.
// Implementations must treat every operation as independently failable;
// no multi-key transaction is ever assumed by callers.
type Store interface {
	// Get returns the value for key and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, keys ...string) error

	// ListAppend pushes value onto the tail of the list at key.
	ListAppend(ctx context.Context, key, value string) error

	// ListTrim keeps only the elements between start and stop inclusive.
	// Negative indices count from the end of the list.
	ListTrim(ctx context.Context, key string, start, stop int64) error

	// ListRange returns the elements between start and stop inclusive,
	// in list order. Negative indices count from the end.
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// ListSet overwrites the element at index in place.
	ListSet(ctx context.Context, key string, index int64, value string) error

	SetAdd(ctx context.Context, key, member string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
	SetRemove(ctx context.Context, key, member string) error

	// Keys returns the key names matching a glob-style pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// Handler is invoked once per message published on a matching channel.
type Handler func(channel, payload string)

// Subscription is an active pattern subscription. Close stops delivery.
type Subscription interface {
	Close() error
}

// Bus is the publish/subscribe contract. A pattern subscription receives
// every message published on any matching channel, by any process,
// including the publishing one.
type Bus interface {
	Publish(ctx context.Context, channel, payload string) error
	PSubscribe(ctx context.Context, pattern string, fn Handler) (Subscription, error)
}
