// Package geo maintains a location index of providers used to build the
// candidate pool for dispatch.
package geo

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Candidate is a provider within range of a job location.
type Candidate struct {
	ProviderID uint
	DistanceKm float64
}

// Index is the minimal interface required by the dispatcher.
type Index interface {
	Upsert(ctx context.Context, providerID uint, lat, lon float64) error
	Remove(ctx context.Context, providerID uint) error
	Nearby(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]Candidate, error)
}

type location struct {
	lat, lon float64
}

// MemoryIndex is an in-process Index. It scans linearly, which is fine for
// the provider counts a single market sees; larger deployments use the
// redis-backed index.
type MemoryIndex struct {
	mu        sync.RWMutex
	providers map[uint]location
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{providers: make(map[uint]location)}
}

// Upsert records a provider's current location.
func (g *MemoryIndex) Upsert(_ context.Context, providerID uint, lat, lon float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.providers[providerID] = location{lat: lat, lon: lon}
	return nil
}

// Remove drops a provider from the index.
func (g *MemoryIndex) Remove(_ context.Context, providerID uint) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.providers, providerID)
	return nil
}

// Nearby returns up to limit providers within radiusKm of the given point,
// closest first.
func (g *MemoryIndex) Nearby(_ context.Context, lat, lon, radiusKm float64, limit int) ([]Candidate, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Candidate, 0, len(g.providers))
	for id, loc := range g.providers {
		dist := Haversine(lat, lon, loc.lat, loc.lon)
		if dist > radiusKm {
			continue
		}
		out = append(out, Candidate{ProviderID: id, DistanceKm: dist})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].ProviderID < out[j].ProviderID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Haversine returns the great-circle distance between two points in km.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}
