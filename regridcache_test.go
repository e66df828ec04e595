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
	"testing"
)

func TestMappingCacheReuse(t *testing.T) {
	source := testGrid(t, "source", 0.5, 0.5, 1, 4, 4)
	target := testGrid(t, "target", 0.25, 0.25, 0.5, 8, 8)
	cache := NewMappingCache(4)
	ctx := context.Background()

	m1, err := cache.Mapping(ctx, source, target, Bilinear, RegridOptions{})
	if err != nil {
		t.Fatal(err)
	}
	m2, err := cache.Mapping(ctx, source, target, Bilinear, RegridOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if m1 != m2 {
		t.Error("repeated requests for the same grid pair should share one mapping")
	}
	stats := cache.Stats()
	if stats.Requests != 2 || stats.Misses != 1 || stats.Hits != 1 {
		t.Errorf("stats were %+v, but should be {Requests:2 Hits:1 Misses:1}", stats)
	}
}

func TestMappingCacheKeySensitivity(t *testing.T) {
	source := testGrid(t, "source", 0.5, 0.5, 1, 4, 4)
	target := testGrid(t, "target", 0.25, 0.25, 0.5, 8, 8)
	cache := NewMappingCache(4)
	ctx := context.Background()

	if _, err := cache.Mapping(ctx, source, target, Bilinear, RegridOptions{}); err != nil {
		t.Fatal(err)
	}
	// A different method is a different cache entry.
	if _, err := cache.Mapping(ctx, source, target, Nearest, RegridOptions{}); err != nil {
		t.Fatal(err)
	}
	// So are different options.
	if _, err := cache.Mapping(ctx, source, target, Nearest, RegridOptions{MaxSearchRadius: 3}); err != nil {
		t.Fatal(err)
	}
	if stats := cache.Stats(); stats.Misses != 3 {
		t.Errorf("misses were %d, but should be 3", stats.Misses)
	}

	// An equal grid built separately hits the same entry because the
	// cache keys on grid identity, not pointer identity.
	source2 := testGrid(t, "source", 0.5, 0.5, 1, 4, 4)
	if _, err := cache.Mapping(ctx, source2, target, Bilinear, RegridOptions{}); err != nil {
		t.Fatal(err)
	}
	if stats := cache.Stats(); stats.Misses != 3 {
		t.Errorf("misses were %d after an equal-grid request, but should stay 3", stats.Misses)
	}
}

func TestMappingCacheError(t *testing.T) {
	source := testGrid(t, "source", 0.5, 0.5, 1, 4, 4)
	disjoint := testGrid(t, "far", 100.5, 100.5, 1, 4, 4)
	cache := NewMappingCache(4)
	if _, err := cache.Mapping(context.Background(), source, disjoint, Nearest, RegridOptions{}); err == nil {
		t.Error("building a mapping between disjoint grids should fail")
	}
}
