package queue

import (
	"github.com/familiar-chat/mediagate/pkg/config"
	"github.com/hibiken/asynq"
)

// Queue names. Presence recounts are latency sensitive but cheap, so they get
// the larger share of worker slots.
const (
	QueuePresence = "presence"
	QueueDefault  = "default"
)

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
	}
}

func NewClient(cfg *config.RedisConfig) *asynq.Client {
	return asynq.NewClient(redisOpt(cfg))
}

func NewServer(cfg *config.RedisConfig, concurrency int) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 10
	}

	return asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				QueuePresence: 6,
				QueueDefault:  1,
			},
		},
	)
}
