// Code scaffolded by goctl. Safe to edit.
// goctl 1.9.2

package logic

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"
	"go.uber.org/zap"

	"pdjudge/internal/common/mq"
	"pdjudge/internal/model"
	"pdjudge/internal/svc"
	appErr "pdjudge/pkg/errors"
	"pdjudge/pkg/utils/logger"
)

// headerLanguage names the task's language id on the queue message.
const headerLanguage = "x-language"

type JudgeConsumerLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewJudgeConsumerLogic(ctx context.Context, svcCtx *svc.ServiceContext) *JudgeConsumerLogic {
	return &JudgeConsumerLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// HandleMessage judges one task message. A nil return acknowledges the
// message; any error rejects it and the queue drops it without requeue, so
// every pre-report failure here logs the raw body for manual triage.
func (l *JudgeConsumerLogic) HandleMessage(ctx context.Context, msg *mq.Message) error {
	if l.svcCtx == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("judge service is not configured")
	}

	task, err := model.DecodeTask(msg.Body)
	if err != nil {
		l.Errorf("drop malformed task %s: %v, body: %q", msg.ID, err, clip(msg.Body, 2048))
		return err
	}

	langID, _ := msg.GetHeader(headerLanguage)
	j, ok := l.svcCtx.Judgers[langID]
	if !ok {
		l.Errorf("drop task %s: language %q is not supported, body: %q", msg.ID, langID, clip(msg.Body, 2048))
		return appErr.Newf(appErr.MalformedTask, "language %q is not supported", langID)
	}

	traceID := msg.ID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	timeout := l.svcCtx.Config.Worker.TaskTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	taskCtx = logger.WithTaskScope(taskCtx, l.svcCtx.WorkerID, traceID, task.Submission.ID)

	logger.Info(taskCtx, "judge task start", zap.String("language", langID))
	report, err := j.Judge(taskCtx, task)
	if err != nil {
		logger.Error(taskCtx, "judge pipeline failed", zap.Error(err),
			zap.String("body", string(clip(msg.Body, 2048))))
		return err
	}
	report.TaskID = traceID

	body, err := model.EncodeReport(report, l.svcCtx.Config.Judge.CompressReports)
	if err != nil {
		logger.Error(taskCtx, "encode report failed", zap.Error(err))
		return err
	}
	out := mq.NewMessage(body)
	out.ID = traceID
	if err := l.svcCtx.Publisher.Publish(taskCtx, l.svcCtx.Config.Kafka.ReportTopic, out); err != nil {
		logger.Error(taskCtx, "publish report failed", zap.Error(err))
		return appErr.Wrap(err, appErr.PublishFailed)
	}
	logger.Info(taskCtx, "judge task done",
		zap.String("verdict", report.Judgment.Verdict.String()),
		zap.Int("score", report.Judgment.Score))
	return nil
}

func clip(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
