package framework

import (
	"context"
	"sync"
	"time"

	"oip/fsbot/pkg/logger"
)

// Processor 处理器：接收批次，调用批次处理函数
type Processor struct {
	cfg        *ProcessorConfig
	handler    BatchHandler
	logger     logger.Logger
	shutdownCh chan struct{}
	once       sync.Once
	wg         sync.WaitGroup
}

// NewProcessor 创建处理器
func NewProcessor(cfg *ProcessorConfig, handler BatchHandler, log logger.Logger) *Processor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Processor{
		cfg:        cfg,
		handler:    handler,
		logger:     log,
		shutdownCh: make(chan struct{}),
	}
}

// Start 启动处理协程
func (p *Processor) Start(ctx context.Context, inputChan <-chan *Batch) {
	p.logger.Infof(ctx, "[Processor] Starting with %d workers", p.cfg.Concurrency)

	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i, inputChan)
	}
}

// SignalShutdown 通知 Processor 准备退出（进入 Drain 模式）
func (p *Processor) SignalShutdown() {
	p.once.Do(func() {
		p.logger.Infof(context.Background(), "[Processor] Shutdown signal received")
		close(p.shutdownCh)
	})
}

// Wait 等待所有处理协程退出
func (p *Processor) Wait() {
	p.wg.Wait()
	p.logger.Infof(context.Background(), "[Processor] All workers exited")
}

func (p *Processor) loop(ctx context.Context, workerID int, inputChan <-chan *Batch) {
	defer p.wg.Done()
	p.logger.Infof(ctx, "[Processor-%d] Started", workerID)

	for {
		select {
		case batch := <-inputChan:
			p.process(ctx, batch, workerID)

		// Drain 模式：处理完缓冲区中的批次再退出
		case <-p.shutdownCh:
			p.logger.Infof(ctx, "[Processor-%d] Entering DRAIN mode", workerID)
			count := 0
			for {
				select {
				case batch := <-inputChan:
					p.process(ctx, batch, workerID)
					count++
				default:
					p.logger.Infof(ctx, "[Processor-%d] Drained %d batches, exiting", workerID, count)
					return
				}
			}
		}
	}
}

func (p *Processor) process(ctx context.Context, batch *Batch, workerID int) {
	if batch == nil || len(batch.Messages) == 0 {
		return
	}
	startTime := time.Now()

	procCtx := ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		procCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}
	procCtx = logger.WithField(procCtx, logger.FieldWorkerID, workerID)
	procCtx = logger.WithField(procCtx, logger.FieldTraceID, batch.ID)

	p.logger.Infof(procCtx, "[Processor-%d] Processing batch %s, size %d", workerID, batch.ID, len(batch.Messages))

	results := p.handler(procCtx, batch.Messages)

	var ok int
	for _, r := range results {
		if r.Success {
			ok++
		}
	}
	p.logger.Infof(procCtx, "[Processor-%d] Batch %s processed: success=%d/%d, duration: %v",
		workerID, batch.ID, ok, len(results), time.Since(startTime))
}
