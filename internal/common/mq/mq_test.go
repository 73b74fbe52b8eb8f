package mq

import (
	"context"
	"testing"
	"time"
)

func TestMessageHeadersSurviveTransport(t *testing.T) {
	t.Parallel()
	in := NewMessage([]byte(`{"submission":{"id":1}}`))
	in.ID = "task-123"
	in.Priority = 9
	in.MaxRetries = 2
	in.Expiration = 5 * time.Minute
	in.SetHeader("x-language", "cpp")

	out := fromKafkaMessage(toKafkaMessage("judge.cpp", in))
	if out.ID != "task-123" || out.Priority != 9 || out.MaxRetries != 2 {
		t.Fatalf("metadata lost: %+v", out)
	}
	if out.Expiration != 5*time.Minute {
		t.Fatalf("expiration = %v, want 5m", out.Expiration)
	}
	if v, ok := out.GetHeader("x-language"); !ok || v != "cpp" {
		t.Fatalf("custom header = %q/%v", v, ok)
	}
	if string(out.Body) != string(in.Body) {
		t.Fatalf("body changed")
	}
}

func TestSetDefaultsKeepsZeroMaxRetries(t *testing.T) {
	t.Parallel()
	var opts SubscribeOptions
	opts.SetDefaults()
	if opts.MaxRetries != 0 {
		t.Fatalf("MaxRetries = %d, want 0 (drop on first failure)", opts.MaxRetries)
	}
	if opts.PrefetchCount != 1 || opts.Concurrency != 1 {
		t.Fatalf("defaults = prefetch %d concurrency %d, want 1/1", opts.PrefetchCount, opts.Concurrency)
	}
}

func TestBuildWeightedSchedule(t *testing.T) {
	t.Parallel()
	schedule := buildWeightedSchedule([]WeightedTopic{
		{Topic: "judge.cpp", Weight: 3},
		{Topic: "judge.python", Weight: 1},
	})
	if len(schedule) != 4 {
		t.Fatalf("schedule length = %d, want 4", len(schedule))
	}
	counts := map[int]int{}
	for _, idx := range schedule {
		counts[idx]++
	}
	if counts[0] != 3 || counts[1] != 1 {
		t.Fatalf("schedule counts = %v, want 3:1", counts)
	}
}

func TestSubscribeValidatesArguments(t *testing.T) {
	t.Parallel()
	q, err := NewKafkaQueue(KafkaConfig{Brokers: []string{"127.0.0.1:1"}})
	if err != nil {
		t.Fatalf("NewKafkaQueue: %v", err)
	}
	defer q.Close()

	handler := func(ctx context.Context, m *Message) error { return nil }
	if err := q.Subscribe(context.Background(), "", handler); err == nil {
		t.Fatal("empty topic accepted")
	}
	if err := q.Subscribe(context.Background(), "judge.report", nil); err == nil {
		t.Fatal("nil handler accepted")
	}
}

func TestSubscribeDefaultsConsumerGroupToTopic(t *testing.T) {
	t.Parallel()
	q, err := NewKafkaQueue(KafkaConfig{Brokers: []string{"127.0.0.1:1"}})
	if err != nil {
		t.Fatalf("NewKafkaQueue: %v", err)
	}
	defer q.Close()

	handler := func(ctx context.Context, m *Message) error { return nil }
	if err := q.Subscribe(context.Background(), "judge.report", handler); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if got := q.subscriptions[0].opts.ConsumerGroup; got != "pdjudge-judge.report" {
		t.Fatalf("consumer group = %q, want pdjudge-judge.report", got)
	}
}

// The single-topic fetch loop must start its workers and drain cleanly on
// Stop even when no broker is reachable.
func TestSingleTopicSubscriptionStartsAndStops(t *testing.T) {
	t.Parallel()
	q, err := NewKafkaQueue(KafkaConfig{Brokers: []string{"127.0.0.1:1"}, DialTimeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewKafkaQueue: %v", err)
	}

	handler := func(ctx context.Context, m *Message) error { return nil }
	if err := q.Subscribe(context.Background(), "judge.report", handler); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := q.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Close()
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not drain the single-topic subscription")
	}

	if err := q.Subscribe(context.Background(), "judge.report", handler); err == nil {
		t.Fatal("Subscribe on closed queue accepted")
	}
}

func TestTokenLimiterBlocksAtCapacity(t *testing.T) {
	t.Parallel()
	limiter := NewTokenLimiter(1)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := limiter.Acquire(ctx); err == nil {
		t.Fatal("second acquire succeeded, want block until release")
	}

	limiter.Release()
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}
