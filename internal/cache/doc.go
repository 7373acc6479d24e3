// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

/*
Package cache stores serialized recommendation responses with a TTL.

The recommendation engine caches each response under a key derived from
(user_id, topk) so repeated requests skip scoring and path sampling. All
backends implement Cacher and are interchangeable through Config.Backend:

  - memory: in-process map with lazy expiry and a one-minute sweeper
  - redis: shared across server replicas (go-redis), keys under KeyPrefix
  - badger: local on-disk store with native per-entry TTLs
  - none: caching disabled

New wraps the chosen backend with prometheus hit, miss and error counters.

# Failure Handling

Callers treat the cache as best-effort. A Get error is logged and handled
as a miss; a Set error never fails a request.

# Invalidation

Entries are never updated in place. When a new embedding snapshot is
published the server calls Flush, which for Redis deletes only keys under
KeyPrefix (SCAN + DEL) so other data in the same database survives.

# Usage

	c, err := cache.New(ctx, cache.Config{Backend: cache.BackendRedis,
	    Redis: cache.RedisConfig{Addr: "localhost:6379"}})
	if err != nil {
	    return err
	}
	defer c.Close()

	key := cache.GenerateKey("rec", params)
	if data, ok, _ := c.Get(ctx, key); ok {
	    return data
	}
	_ = c.Set(ctx, key, payload, 0) // 0 uses the configured TTL
*/
package cache
