package geo

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisIndex implements Index using Redis GEO commands so multiple server
// instances share one provider location set.
type RedisIndex struct {
	client *redis.Client
	key    string
}

// NewRedisIndex creates a redis-backed index under the given key.
func NewRedisIndex(addr, password, key string) *RedisIndex {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisIndex{client: c, key: key}
}

// Upsert records a provider's current location.
func (r *RedisIndex) Upsert(ctx context.Context, providerID uint, lat, lon float64) error {
	return r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
		Name:      memberName(providerID),
		Latitude:  lat,
		Longitude: lon,
	}).Err()
}

// Remove drops a provider from the index.
func (r *RedisIndex) Remove(ctx context.Context, providerID uint) error {
	return r.client.ZRem(ctx, r.key, memberName(providerID)).Err()
}

// Nearby returns up to limit providers within radiusKm of the given point,
// closest first.
func (r *RedisIndex) Nearby(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]Candidate, error) {
	res, err := r.client.GeoSearchLocation(ctx, r.key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Latitude:   lat,
			Longitude:  lon,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(res))
	for _, g := range res {
		id, err := strconv.ParseUint(g.Name, 10, 64)
		if err != nil {
			// Foreign member in the key; skip rather than fail the dispatch.
			continue
		}
		out = append(out, Candidate{ProviderID: uint(id), DistanceKm: g.Dist})
	}
	return out, nil
}

// Close releases the underlying redis connection.
func (r *RedisIndex) Close() error {
	return r.client.Close()
}

func memberName(providerID uint) string {
	return strconv.FormatUint(uint64(providerID), 10)
}
