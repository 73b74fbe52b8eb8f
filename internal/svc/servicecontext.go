// Code scaffolded by goctl. Safe to edit.
// goctl 1.9.2

package svc

import (
	"os"

	"pdjudge/internal/common/mq"
	"pdjudge/internal/compiler"
	"pdjudge/internal/config"
	"pdjudge/internal/downloader"
	"pdjudge/internal/judger"
	"pdjudge/internal/language"
	"pdjudge/internal/sandbox"
)

type ServiceContext struct {
	Config     config.Config
	WorkerID   string
	Registry   *language.Registry
	Downloader downloader.Downloader
	Executor   sandbox.Executor
	Queue      *mq.KafkaQueue
	// Publisher is the report outlet; it is the queue in production and a
	// fake in tests.
	Publisher mq.Producer
	// Judgers holds one orchestrator per supported language id.
	Judgers map[string]*judger.Judger
}

func NewServiceContext(c config.Config) (*ServiceContext, error) {
	registry, err := language.LoadRegistry(c.Judge.LanguageFile)
	if err != nil {
		return nil, err
	}
	executor, err := sandbox.NewJail(c.Sandbox)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(c.Judge.WorkRoot, 0755); err != nil {
		return nil, err
	}
	queue, err := mq.NewKafkaQueue(c.Kafka.ToMQConfig())
	if err != nil {
		return nil, err
	}

	dl := downloader.NewHTTP(c.Downloader)
	judgers := make(map[string]*judger.Judger)
	for _, spec := range registry.All() {
		judgers[spec.ID] = judger.New(dl, newCompiler(spec), executor, spec, c.Judge.WorkRoot)
	}

	workerID := c.Worker.ID
	if workerID == "" {
		host, _ := os.Hostname()
		workerID = host
	}

	return &ServiceContext{
		Config:     c,
		WorkerID:   workerID,
		Registry:   registry,
		Downloader: dl,
		Executor:   executor,
		Queue:      queue,
		Publisher:  queue,
		Judgers:    judgers,
	}, nil
}

// newCompiler picks the build step the language needs: a real compiler
// subprocess or a verbatim copy for interpreted languages.
func newCompiler(spec language.Spec) compiler.Compiler {
	if !spec.CompileEnabled {
		return compiler.Copy{}
	}
	return compiler.NewSubprocess(spec.CompileArgs)
}
