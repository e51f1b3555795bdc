package cache

import "time"

// BytesCache is a minimal cache API storing raw bytes with TTL. Used to shave
// repeated stats and sync queries off the hot read path.
type BytesCache interface {
	GetBytes(key string) (b []byte, ok bool, err error)
	SetBytes(key string, value []byte, ttl time.Duration) error
}
