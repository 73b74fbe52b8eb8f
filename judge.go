// Code scaffolded by goctl. Safe to edit.
// goctl 1.9.2

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/rest"

	"pdjudge/internal/common/mq"
	"pdjudge/internal/config"
	"pdjudge/internal/handler"
	"pdjudge/internal/logic"
	"pdjudge/internal/svc"
	"pdjudge/pkg/utils/logger"
)

var configFile = flag.String("f", "etc/judge.yaml", "the config file")

func main() {
	flag.Parse()

	var c config.Config
	conf.MustLoad(*configFile, &c)

	if err := logger.Init(c.Log); err != nil {
		logx.Errorf("init logger failed: %v", err)
		return
	}

	server := rest.MustNewServer(c.RestConf)
	defer server.Stop()

	ctx, err := svc.NewServiceContext(c)
	if err != nil {
		logx.Errorf("init service context failed: %v", err)
		return
	}
	defer func() {
		_ = ctx.Queue.Stop()
		_ = ctx.Queue.Close()
	}()

	weightedTopics, err := buildWeightedTopics(ctx, c.Kafka.TopicWeights)
	if err != nil {
		logx.Errorf("build weighted topics failed: %v", err)
		return
	}

	limiter := mq.NewTokenLimiter(c.Worker.PoolSize)
	consumer := logic.NewJudgeConsumerLogic(context.Background(), ctx)
	err = ctx.Queue.SubscribeWeighted(context.Background(), weightedTopics, consumer.HandleMessage, &mq.SubscribeOptions{
		ConsumerGroup:   c.Kafka.ConsumerGroup,
		PrefetchCount:   c.Kafka.PrefetchCount,
		Concurrency:     c.Kafka.Concurrency,
		MaxRetries:      c.Kafka.MaxRetries,
		RetryDelay:      c.Kafka.RetryDelay,
		DeadLetterTopic: c.Kafka.DeadLetter,
		MessageTTL:      c.Kafka.MessageTTL,
	}, limiter)
	if err != nil {
		logx.Errorf("subscribe kafka failed: %v", err)
		return
	}
	if err := ctx.Queue.Start(); err != nil {
		logx.Errorf("start kafka consumer failed: %v", err)
		return
	}

	handler.RegisterHandlers(server, ctx)

	logx.Infof("starting server at %s:%d...", c.Host, c.Port)
	server.Start()
}

// buildWeightedTopics derives one weighted task topic per registered
// language. Config weights override the language file's, so operators can
// reprioritize without editing language definitions.
func buildWeightedTopics(ctx *svc.ServiceContext, overrides map[string]int) ([]mq.WeightedTopic, error) {
	specs := ctx.Registry.All()
	weighted := make([]mq.WeightedTopic, 0, len(specs))
	for _, spec := range specs {
		topic := spec.Topic()
		weight := spec.TopicWeight
		if w, ok := overrides[topic]; ok {
			weight = w
		}
		if weight == 0 {
			weight = 1
		}
		if weight < 0 {
			return nil, fmt.Errorf("invalid topic weight %d for %s", weight, topic)
		}
		weighted = append(weighted, mq.WeightedTopic{Topic: topic, Weight: weight})
	}
	return weighted, nil
}
