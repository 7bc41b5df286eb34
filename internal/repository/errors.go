package repository

import "errors"

// ErrAlreadyExists is returned by Create when the natural key is taken:
// a user's Telegram id or email, a container id, a file id.
var ErrAlreadyExists = errors.New("record already exists")

// ErrCacheMiss is returned by Cache.Get for absent or expired keys.
var ErrCacheMiss = errors.New("cache miss")

// ErrCacheUnavailable wraps transport failures of a remote cache.
var ErrCacheUnavailable = errors.New("cache unavailable")
