// Package actuator forwards top predictions to whatever moves the sorting
// flap. Nothing here touches hardware; sinks either log the decision or
// publish it for a separate controller process.
package actuator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Actuator receives the winning label of a classification.
type Actuator interface {
	SetAngle(ctx context.Context, label string) error
}

// AngleTable maps labels to flap angles in degrees.
type AngleTable struct {
	Angles  map[string]int
	Default int
}

// Angle returns the configured angle for label, or Default.
func (t AngleTable) Angle(label string) int {
	if a, ok := t.Angles[label]; ok {
		return a
	}
	return t.Default
}

// Command is the message sent to the controller.
type Command struct {
	Label string    `json:"label"`
	Angle int       `json:"angle"`
	At    time.Time `json:"at"`
}

// LogActuator only logs the decision. It is the default when no controller
// is attached.
type LogActuator struct {
	Table  AngleTable
	Logger logrus.FieldLogger
}

func (a *LogActuator) SetAngle(_ context.Context, label string) error {
	logger := a.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger.WithFields(logrus.Fields{
		"label": label,
		"angle": a.Table.Angle(label),
	}).Info("set angle")
	return nil
}

// Publisher is the subset of the redis client used by RedisActuator.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisActuator publishes a Command per decision on a Redis channel.
type RedisActuator struct {
	client  Publisher
	channel string
	table   AngleTable
	now     func() time.Time
}

// NewRedisActuator wraps an existing publisher.
func NewRedisActuator(client Publisher, channel string, table AngleTable) *RedisActuator {
	return &RedisActuator{
		client:  client,
		channel: channel,
		table:   table,
		now:     time.Now,
	}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func (a *RedisActuator) SetAngle(ctx context.Context, label string) error {
	payload, err := json.Marshal(Command{
		Label: label,
		Angle: a.table.Angle(label),
		At:    a.now().UTC(),
	})
	if err != nil {
		return err
	}
	receivers, err := a.client.Publish(ctx, a.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", a.channel, err)
	}
	if receivers == 0 {
		logrus.WithField("channel", a.channel).Warn("no controller subscribed")
	}
	return nil
}
