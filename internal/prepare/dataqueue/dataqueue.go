// Package dataqueue schedules delayed result aggregation for notifications in a Redis
// sorted set scored by due time.
package dataqueue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/notifyhub/prepflow/internal/prepare"
)

const DefaultKey = "prepflow:aggregation"

type Queue struct {
	rdb redis.UniversalClient
	key string
}

var _ prepare.DataQueue = (*Queue)(nil)

func New(rdb redis.UniversalClient, key string) *Queue {
	if key == "" {
		key = DefaultKey
	}

	return &Queue{
		rdb: rdb,
		key: key,
	}
}

// ScheduleAggregation keeps the first due time of a notification, later calls are no-ops.
func (q *Queue) ScheduleAggregation(ctx context.Context, notificationID string, at time.Time) error {
	if err := q.rdb.ZAddNX(ctx, q.key, redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: notificationID,
	}).Err(); err != nil {
		return fmt.Errorf("scheduling aggregation for %s: %w", notificationID, err)
	}

	return nil
}

// Due removes and returns up to limit notifications whose aggregation is due at now. A
// notification is returned to a single caller only.
func (q *Queue) Due(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	ids, err := q.rdb.ZRangeArgs(ctx, redis.ZRangeArgs{
		Key:     q.key,
		Start:   "-inf",
		Stop:    strconv.FormatInt(now.UnixMilli(), 10),
		ByScore: true,
		Count:   limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("reading due aggregations: %w", err)
	}

	due := make([]string, 0, len(ids))
	for _, id := range ids {
		removed, err := q.rdb.ZRem(ctx, q.key, id).Result()
		if err != nil {
			return due, fmt.Errorf("claiming aggregation for %s: %w", id, err)
		}

		if removed == 1 {
			due = append(due, id)
		}
	}

	return due, nil
}
