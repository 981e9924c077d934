package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	versionKeyPrefix = "receivables:version"
	bumpChannel      = "receivables.bump"
)

// Cache wraps Redis based caching with per-organisation versioning. Bumping
// an organisation's version orphans every report cached for it; the stale
// entries expire with the TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the organisation's cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context, orgID uuid.UUID) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	key := versionKey(orgID)
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, key).Int64()
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, key, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// BuildKey composes the cache key with the organisation's current version.
func (c *Cache) BuildKey(ctx context.Context, orgID uuid.UUID, parts ...string) (string, error) {
	joined := strings.Join(parts, ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx, orgID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", joined, ver), nil
}

// FetchJSON loads a cached value or populates it using the loader.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return roundTrip(value, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return err
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates the reports of one organisation and announces the new
// version on the bump channel as "<org>:<version>".
func (c *Cache) Bump(ctx context.Context, orgID uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, versionKey(orgID)).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, bumpMessage(orgID, ver)).Err()
}

// ListenForInvalidation follows version bumps published by other processes.
// A published version never lowers the local one.
func (c *Cache) ListenForInvalidation(ctx context.Context, channel string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if channel == "" {
		channel = bumpChannel
	}
	pubsub := c.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				orgID, ver, err := parseBumpMessage(msg.Payload)
				if err != nil {
					continue
				}
				_ = c.raiseVersion(ctx, orgID, ver)
			}
		}
	}()
	return nil
}

func (c *Cache) raiseVersion(ctx context.Context, orgID uuid.UUID, ver int64) error {
	key := versionKey(orgID)
	current, err := c.client.Get(ctx, key).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if current >= ver {
		return nil
	}
	return c.client.Set(ctx, key, ver, 0).Err()
}

func versionKey(orgID uuid.UUID) string {
	return versionKeyPrefix + ":" + orgID.String()
}

func bumpMessage(orgID uuid.UUID, ver int64) string {
	return orgID.String() + ":" + strconv.FormatInt(ver, 10)
}

func parseBumpMessage(payload string) (uuid.UUID, int64, error) {
	rawOrg, rawVer, ok := strings.Cut(payload, ":")
	if !ok {
		return uuid.Nil, 0, fmt.Errorf("reporting: malformed bump %q", payload)
	}
	orgID, err := uuid.Parse(rawOrg)
	if err != nil {
		return uuid.Nil, 0, err
	}
	ver, err := strconv.ParseInt(rawVer, 10, 64)
	if err != nil || ver <= 0 {
		return uuid.Nil, 0, fmt.Errorf("reporting: malformed bump %q", payload)
	}
	return orgID, ver, nil
}

func roundTrip(value interface{}, dest interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func keyAging(orgID uuid.UUID, asOf time.Time) string {
	return strings.Join([]string{"receivables", "aging", orgID.String(), asOf.Format(time.DateOnly)}, ":")
}

func keyDashboard(orgID uuid.UUID, asOf time.Time) string {
	return strings.Join([]string{"receivables", "dashboard", orgID.String(), asOf.Format(time.DateOnly)}, ":")
}
