// Package announce bridges an external announcement topic into the mesh.
// Building alarms and ops broadcasts published to kafka go through the same
// hazard gate as audio probes: only critical urgency reaches participants.
package announce

import (
	"context"
	"encoding/json"
	"time"

	"github.com/golang/glog"
	kafka "github.com/segmentio/kafka-go"

	"github.com/sensemesh/sensemesh/wire"
)

const (
	readTimeout = 10 * time.Second

	backoffMinInterval = 1 * time.Second
	backoffMaxInterval = 60 * time.Second
	backoffMultiplier  = 1.5

	valueMaxBytes = 4096
)

// IKafkaReader is the consumed subset of kafka.Reader, mockable in tests.
type IKafkaReader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Gate receives every decoded announcement; it decides whether to broadcast.
type Gate func(event string, urgency wire.Urgency)

// announcement is the kafka message value.
type announcement struct {
	Event   string       `json:"event"`
	Urgency wire.Urgency `json:"urgency"`
}

// Source consumes announcements until stopped.
type Source struct {
	reader IKafkaReader
	gate   Gate
}

type Conf struct {
	Brokers []string
	Topic   string
	GroupID string
}

func NewSource(conf Conf, gate Gate) *Source {
	return &Source{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: conf.Brokers,
			GroupID: conf.GroupID,
			Topic:   conf.Topic,
			Dialer: &kafka.Dialer{
				Timeout:   readTimeout,
				DualStack: true,
			},
		}),
		gate: gate,
	}
}

func newSource(reader IKafkaReader, gate Gate) *Source {
	return &Source{reader: reader, gate: gate}
}

// Run fetches, gates and commits messages until ctx is done, backing off
// exponentially on fetch or commit errors.
func (s *Source) Run(ctx context.Context, stopDoneC chan<- struct{}) {
	glog.Info("announce: consume loop enter")
	defer func() {
		glog.Info("announce: consume loop exited")
		stopDoneC <- struct{}{}
	}()

	var sleep time.Duration

	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if err == context.Canceled || ctx.Err() != nil {
				_ = s.reader.Close()
				return
			}
			glog.Errorf("announce: fetch err: %v", err)
			backoff(&sleep)
			select {
			case <-time.After(sleep):
				continue
			case <-ctx.Done():
				_ = s.reader.Close()
				return
			}
		}
		sleep = 0

		if a := decode(&msg); a != nil {
			s.gate(a.Event, a.Urgency)
		}

		for {
			if err := s.reader.CommitMessages(ctx, msg); err == nil {
				sleep = 0
				break
			} else {
				if err == context.Canceled || ctx.Err() != nil {
					_ = s.reader.Close()
					return
				}
				// Uncommitted messages are re-fetched; the gate is
				// idempotent enough for a duplicate alert.
				glog.Errorf("announce: commit err: %v", err)
				backoff(&sleep)
				select {
				case <-time.After(sleep):
					continue
				case <-ctx.Done():
					_ = s.reader.Close()
					return
				}
			}
		}
	}
}

func decode(msg *kafka.Message) *announcement {
	if len(msg.Value) > valueMaxBytes {
		glog.Errorf("announce: value out of limit, offset: %d", msg.Offset)
		return nil
	}
	var a announcement
	if err := json.Unmarshal(msg.Value, &a); err != nil {
		glog.Errorf("announce: bad value `%s`: %v", msg.Value, err)
		return nil
	}
	if a.Event == "" {
		return nil
	}
	return &a
}

func backoff(d *time.Duration) {
	if *d == 0 {
		*d = backoffMinInterval
	} else {
		*d = time.Duration(float64(*d) * backoffMultiplier)
		if *d > backoffMaxInterval {
			*d = backoffMaxInterval
		}
	}
}
