/*
Copyright © 2026 the Downscale authors.
This file is part of Downscale.

Downscale is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Downscale is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Downscale.  If not, see <http://www.gnu.org/licenses/>.
*/

package downscale

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ctessum/requestcache"
)

// CacheStats reports mapping cache usage for a pipeline run.
type CacheStats struct {
	Requests int64
	Hits     int64
	Misses   int64
}

// MappingCache memoizes RegridMapping computation per (source grid,
// target grid, method, options) tuple. Building a mapping is expensive
// and depends only on grid geometry, so the cache is populate-once,
// read-many; concurrent requests for the same grid pair are deduplicated
// so the mapping is never computed twice. A cache is passed explicitly
// into each pipeline rather than held as hidden global state, so tests can
// substitute an empty or pre-seeded cache.
type MappingCache struct {
	once     sync.Once
	cache    *requestcache.Cache
	maxItems int

	requests, misses int64
}

type mappingRequest struct {
	source, target *GridDefinition
	method         InterpMethod
	opts           RegridOptions
}

// NewMappingCache creates a cache holding up to maxItems mappings in
// memory. If maxItems is zero, a default of 4 is used; a coarse-to-fine
// run normally needs exactly one mapping.
func NewMappingCache(maxItems int) *MappingCache {
	if maxItems <= 0 {
		maxItems = 4
	}
	return &MappingCache{maxItems: maxItems}
}

// Mapping returns the regridding for the given grid pair, building it on
// first use. It is safe for concurrent use; the returned mapping is shared
// and must be treated as read-only.
func (c *MappingCache) Mapping(ctx context.Context, source, target *GridDefinition, method InterpMethod, opts RegridOptions) (*RegridMapping, error) {
	c.once.Do(func() {
		c.cache = requestcache.NewCache(func(ctx context.Context, request interface{}) (interface{}, error) {
			atomic.AddInt64(&c.misses, 1)
			r := request.(mappingRequest)
			return BuildMapping(r.source, r.target, r.method, r.opts)
		}, runtime.GOMAXPROCS(-1),
			requestcache.Deduplicate(), requestcache.Memory(c.maxItems))
	})
	atomic.AddInt64(&c.requests, 1)
	req := c.cache.NewRequest(ctx,
		mappingRequest{source: source, target: target, method: method, opts: opts},
		fmt.Sprintf("regrid_%s_%s_%s_%g", source.Key(), target.Key(), method, opts.MaxSearchRadius),
	)
	result, err := req.Result()
	if err != nil {
		return nil, err
	}
	return result.(*RegridMapping), nil
}

// Stats returns cumulative cache usage counters.
func (c *MappingCache) Stats() CacheStats {
	req := atomic.LoadInt64(&c.requests)
	miss := atomic.LoadInt64(&c.misses)
	return CacheStats{Requests: req, Misses: miss, Hits: req - miss}
}
