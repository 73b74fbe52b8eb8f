// Code scaffolded by goctl. Safe to edit.
// goctl 1.9.2

package config

import (
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/zeromicro/go-zero/rest"

	"pdjudge/internal/common/mq"
	"pdjudge/internal/downloader"
	"pdjudge/internal/sandbox"
	"pdjudge/pkg/utils/logger"
)

type Config struct {
	rest.RestConf
	Log        logger.Config     `json:"log,optional"`
	Kafka      KafkaConfig       `json:"kafka"`
	Downloader downloader.Config `json:"downloader,optional"`
	Sandbox    sandbox.Config    `json:"sandbox"`
	Judge      JudgeConfig       `json:"judge"`
	Worker     WorkerConfig      `json:"worker,optional"`
}

// KafkaConfig holds Kafka settings.
type KafkaConfig struct {
	Brokers       []string       `json:"brokers"`
	ClientID      string         `json:"clientID,optional"`
	MinBytes      int            `json:"minBytes,optional"`
	MaxBytes      int            `json:"maxBytes,optional"`
	MaxWait       time.Duration  `json:"maxWait,optional"`
	BatchSize     int            `json:"batchSize,optional"`
	BatchTimeout  time.Duration  `json:"batchTimeout,optional"`
	DialTimeout   time.Duration  `json:"dialTimeout,optional"`
	ReadTimeout   time.Duration  `json:"readTimeout,optional"`
	WriteTimeout  time.Duration  `json:"writeTimeout,optional"`
	RequiredAcks  int            `json:"requiredAcks,optional"`
	Compression   string         `json:"compression,optional"`
	ConsumerGroup string         `json:"consumerGroup,optional"`
	PrefetchCount int            `json:"prefetchCount,default=1"`
	Concurrency   int            `json:"concurrency,default=1"`
	// MaxRetries is the in-process redelivery budget for a failing task.
	// Zero drops a poison task on its first failure.
	MaxRetries   int            `json:"maxRetries,default=0"`
	RetryDelay   time.Duration  `json:"retryDelay,default=1s"`
	ReportTopic  string         `json:"reportTopic,default=judge.report"`
	DeadLetter   string         `json:"deadLetter,optional"`
	MessageTTL   time.Duration  `json:"messageTTL,optional"`
	TopicWeights map[string]int `json:"topicWeights,optional"`
}

// JudgeConfig holds judge runtime settings.
type JudgeConfig struct {
	WorkRoot     string `json:"workRoot,default=/tmp/pdjudge"`
	LanguageFile string `json:"languageFile,default=etc/languages.yaml"`
	// CompressReports base64+zstd-encodes outbound report bodies.
	CompressReports bool `json:"compressReports,optional"`
}

// WorkerConfig holds worker pool settings.
type WorkerConfig struct {
	// ID tags every log line of this worker process.
	ID string `json:"id,optional"`
	// PoolSize caps tasks in flight across all subscribed topics.
	PoolSize int `json:"poolSize,default=1"`
	// TaskTimeout bounds one whole judge pipeline run.
	TaskTimeout time.Duration `json:"taskTimeout,default=10m"`
}

// ToMQConfig converts kafka settings to mq.KafkaConfig.
func (k KafkaConfig) ToMQConfig() mq.KafkaConfig {
	return mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		MinBytes:     k.MinBytes,
		MaxBytes:     k.MaxBytes,
		MaxWait:      k.MaxWait,
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		DialTimeout:  k.DialTimeout,
		ReadTimeout:  k.ReadTimeout,
		WriteTimeout: k.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(k.RequiredAcks),
		Compression:  parseCompression(k.Compression),
	}
}

func parseCompression(raw string) kafka.Compression {
	switch strings.ToLower(raw) {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}
