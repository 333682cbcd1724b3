// Package cache is the local persistent key/value cache. The server mirrors
// user records and registrations into it; the CLI keeps its installation id
// and access token there.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store is a persistent key/value cache. Get returns (nil, nil) for a key
// that was never set.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, keys ...string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}

// GetJSON decodes the value stored under key into v. It reports false when
// the key is absent.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode cache[%s]: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v under key as JSON.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache[%s]: %w", key, err)
	}
	return s.Set(ctx, key, data)
}
