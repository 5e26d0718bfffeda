// Package cache persists the last hub snapshot to local SQLite storage.
//
// A panel restart should not leave the UI blank while the hub is slow or
// unreachable: the cached snapshot seeds the device store immediately, and
// the first live snapshot load replaces it. The cache stores exactly one
// row — the full device list as JSON plus its save time — so staleness is
// trivially observable by callers.
//
// # Usage
//
//	c, err := cache.Open(cfg.Cache)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	devices, savedAt, err := c.LoadSnapshot(ctx)
//	if errors.Is(err, cache.ErrNoSnapshot) {
//	    // first run, nothing cached yet
//	}
package cache
