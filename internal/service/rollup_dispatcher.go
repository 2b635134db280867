package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"learning_progress_backend/internal/config"
	"learning_progress_backend/internal/util"
	"learning_progress_backend/pkg/logger"
	"learning_progress_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// Recomputer 由 RollupService 实现，测试中可替换
type Recomputer interface {
	Recompute(ctx context.Context, req RollupRequest) error
}

type rollupFailure struct {
	req RollupRequest
	err error
}

// RollupDispatcher 决定汇总在请求内同步执行，还是提交到后台 worker
// 后台模式的失败经由 errs 通道记录日志并上报，不会返回给写请求
type RollupDispatcher struct {
	rollup   Recomputer
	detached atomic.Bool
	timeout  time.Duration

	mu     sync.RWMutex
	closed bool
	tasks  chan RollupRequest
	errs   chan rollupFailure

	workers sync.WaitGroup
	drained chan struct{}
}

func NewRollupDispatcher(rollup Recomputer, cfg config.TrackingConfig) *RollupDispatcher {
	workers := cfg.RollupWorkers
	if workers <= 0 {
		workers = 1
	}
	queue := cfg.RollupQueue
	if queue <= 0 {
		queue = workers
	}

	d := &RollupDispatcher{
		rollup:  rollup,
		timeout: cfg.StoreTimeout() + cfg.LockWait(),
		tasks:   make(chan RollupRequest, queue),
		errs:    make(chan rollupFailure, queue),
		drained: make(chan struct{}),
	}
	d.SetMode(cfg.RollupMode)

	for i := 0; i < workers; i++ {
		d.workers.Add(1)
		go d.work()
	}
	go d.reportFailures()

	return d
}

// SetMode 配置热更新时切换 inline/detached
func (d *RollupDispatcher) SetMode(mode string) {
	d.detached.Store(mode != config.RollupModeInline)
}

func (d *RollupDispatcher) Mode() string {
	if d.detached.Load() {
		return config.RollupModeDetached
	}
	return config.RollupModeInline
}

// Dispatch inline 模式返回汇总错误；detached 模式只在入队后返回 nil
func (d *RollupDispatcher) Dispatch(ctx context.Context, req RollupRequest) error {
	if !d.detached.Load() {
		err := d.rollup.Recompute(ctx, req)
		monitoring.RollupCounter.WithLabelValues(config.RollupModeInline, util.ErrorKind(err)).Inc()
		return err
	}

	d.mu.RLock()
	if !d.closed {
		// 入队前计数，未能入队时回退
		monitoring.RollupQueueDepth.Inc()
		select {
		case d.tasks <- req:
			d.mu.RUnlock()
			return nil
		default:
			monitoring.RollupQueueDepth.Dec()
		}
	}
	d.mu.RUnlock()

	// 队列已满或正在关闭：在当前请求内执行，失败同样只记录不返回
	logger.Log.Warn("Rollup queue unavailable, running in request", rollupFields(req)...)
	if err := d.run(req); err != nil {
		d.logFailure(rollupFailure{req: req, err: err})
	}
	return nil
}

func (d *RollupDispatcher) work() {
	defer d.workers.Done()
	for req := range d.tasks {
		monitoring.RollupQueueDepth.Dec()
		if err := d.run(req); err != nil {
			d.errs <- rollupFailure{req: req, err: err}
		}
	}
}

// run 后台任务不继承请求的 ctx，请求结束不会取消汇总
func (d *RollupDispatcher) run(req RollupRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	err := d.rollup.Recompute(ctx, req)
	monitoring.RollupCounter.WithLabelValues(config.RollupModeDetached, util.ErrorKind(err)).Inc()
	return err
}

func (d *RollupDispatcher) reportFailures() {
	defer close(d.drained)
	for f := range d.errs {
		d.logFailure(f)
	}
}

func (d *RollupDispatcher) logFailure(f rollupFailure) {
	fields := append(rollupFields(f.req), zap.Error(f.err))
	logger.Log.Error("Detached rollup failed", fields...)
	logger.Report(f.err, map[string]interface{}{
		"tenant_id": f.req.Scope.TenantID,
		"user_id":   f.req.UserID,
		"course_id": f.req.CourseID,
		"lesson_id": f.req.LessonID,
		"trigger":   string(f.req.Trigger),
	})
}

// Close 停止接收新任务，等待队列中的任务执行完
func (d *RollupDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.tasks)
	d.mu.Unlock()

	d.workers.Wait()
	close(d.errs)
	<-d.drained
}

func rollupFields(req RollupRequest) []zap.Field {
	return append(scopeFields(req.Scope),
		zap.Uint("user_id", req.UserID),
		zap.Uint("course_id", req.CourseID),
		zap.Uint("lesson_id", req.LessonID),
		zap.String("trigger", string(req.Trigger)),
	)
}
