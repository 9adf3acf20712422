package cache

import (
	"golang.org/x/sync/singleflight"
)

// Guard runs at most one computation per key at a time; concurrent callers
// for the same key share the result.
type Guard[T any] struct {
	group singleflight.Group
}

// Do runs fn for key unless a call for key is already in flight.
func (g *Guard[T]) Do(key Key, fn func() (T, error)) (T, error) {
	v, err, _ := g.group.Do(key.String(), func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
