package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-queue/internal/appointment"
)

// Publisher fans a fresh snapshot out to live views.
type Publisher interface {
	Publish(ctx context.Context, status appointment.DepartmentQueueStatus) error
}

const channelPrefix = "queue:status:"

// Channel is the pub/sub channel snapshots of department are published on.
func Channel(department string) string {
	return channelPrefix + department
}

// StatusMessage is the JSON published for each snapshot.
type StatusMessage struct {
	Department      string    `json:"department"`
	CheckedInCount  int       `json:"checked_in_count"`
	InProgressCount int       `json:"in_progress_count"`
	AvgWaitTime     float64   `json:"avg_wait_time"`
	EstimatedWait   float64   `json:"estimated_wait"`
	LastUpdated     time.Time `json:"last_updated"`
}

func newStatusMessage(s appointment.DepartmentQueueStatus) StatusMessage {
	return StatusMessage{
		Department:      s.Department,
		CheckedInCount:  s.CheckedInCount,
		InProgressCount: s.InProgressCount,
		AvgWaitTime:     s.AvgWaitTime,
		EstimatedWait:   s.EstimatedWait,
		LastUpdated:     s.LastUpdated,
	}
}

// RedisPublisher publishes snapshots with PUBLISH, one channel per department.
type RedisPublisher struct {
	client redis.UniversalClient
}

func NewRedisPublisher(client redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, status appointment.DepartmentQueueStatus) error {
	payload, err := json.Marshal(newStatusMessage(status))
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, Channel(status.Department), payload).Err()
}
