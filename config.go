package main

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConf holds the deployment-specific endpoints and tuning knobs, read
// from SENSEMESH_* environment variables. Process-level switches stay on
// flags, see main.go.
type EnvConf struct {
	InferBaseURL     string        `envconfig:"INFER_BASE_URL" default:"http://127.0.0.1:9100"`
	InferTimeout     time.Duration `envconfig:"INFER_TIMEOUT" default:"15s"`
	InferMaxInflight int           `envconfig:"INFER_MAX_INFLIGHT" default:"8"`

	KafkaBrokers  []string `envconfig:"KAFKA_BROKERS" default:"127.0.0.1:9092"`
	AnnounceTopic string   `envconfig:"ANNOUNCE_TOPIC" default:"sensemesh-announcements"`
	AnnounceGroup string   `envconfig:"ANNOUNCE_GROUP" default:"sensemesh"`
}

func loadEnvConf() (*EnvConf, error) {
	var c EnvConf
	if err := envconfig.Process("sensemesh", &c); err != nil {
		return nil, err
	}
	return &c, nil
}
