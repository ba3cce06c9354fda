package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func receiptsKey(submissionID string) string {
	return "dispatch:" + submissionID
}

type receiptValue struct {
	RemoteMessageID string    `json:"remoteMessageId"`
	SentAt          time.Time `json:"sentAt"`
}

// StoreSent adds one receipt to the submission's hash and refreshes its TTL.
func (c *RedisCache) StoreSent(ctx context.Context, submissionID string, contactID int, remoteMessageID string, sentAt time.Time) error {
	b, err := json.Marshal(receiptValue{
		RemoteMessageID: remoteMessageID,
		SentAt:          sentAt.UTC(),
	})
	if err != nil {
		return err
	}

	key := receiptsKey(submissionID)
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, strconv.Itoa(contactID), b)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	return err
}

// Receipts returns the stored receipts ordered by contact id.
func (c *RedisCache) Receipts(ctx context.Context, submissionID string) ([]Receipt, error) {
	raw, err := c.rdb.HGetAll(ctx, receiptsKey(submissionID)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]Receipt, 0, len(raw))
	for field, val := range raw {
		id, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("bad receipt field %q: %w", field, err)
		}
		var v receiptValue
		if err := json.Unmarshal([]byte(val), &v); err != nil {
			return nil, fmt.Errorf("decode receipt %s/%s: %w", submissionID, field, err)
		}
		out = append(out, Receipt{ContactID: id, RemoteMessageID: v.RemoteMessageID, SentAt: v.SentAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContactID < out[j].ContactID })
	return out, nil
}
