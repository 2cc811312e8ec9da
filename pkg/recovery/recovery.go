// Package recovery 实现stuck-saga恢复worker
//
// orchestrator正常情况下完全由回复驱动：命令发出去，回复进来，OnReply推进状态。
// 但回复有可能永远不会到达——参与方进程崩溃、消息在transport里丢失、命令
// 本身从未被消费。recovery worker定期扫描长时间停留在InProgress/Compensating
// 且没有被其它worker持有租约的saga实例，重新发出当前步骤的命令：多亏
// NewDeterministic，重发产生的event-id和上一次完全相同，下游inbox天然去重，
// 不会造成业务动作被执行两次。
package recovery

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/xiebiao/saga-commerce/pkg/metrics"
	"github.com/xiebiao/saga-commerce/pkg/sagastore"
)

// Resumer是恢复worker依赖的orchestrator能力，只取Resume方法避免循环依赖
type Resumer interface {
	Resume(ctx context.Context, state *sagastore.State) error
}

// stuckClaimer是恢复worker实际用到的sagastore.Store方法子集，便于单元测试替换。
// CountByTypeAndStatus用于巡检时采样saga_status_count指标，不参与恢复逻辑本身，
// 挂在同一个接口上是因为两者共用同一个*sagastore.Store实现。
type stuckClaimer interface {
	ClaimStuck(ctx context.Context, workerID string, stuckThreshold, leaseFor time.Duration, limit int) ([]*sagastore.State, error)
	ReleaseLease(ctx context.Context, id string) error
	CountByTypeAndStatus(ctx context.Context) ([]sagastore.TypeStatusCount, error)
}

// Config 对应spec配置键 saga.stuck_threshold_ms / saga.recovery_interval_ms
type Config struct {
	PollInterval   time.Duration // saga.recovery_interval_ms，默认60s
	StuckThreshold time.Duration // saga.stuck_threshold_ms，默认120s
	LeaseDuration  time.Duration
	BatchSize      int
	WorkerID       string
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 60 * time.Second
	}
	if c.StuckThreshold <= 0 {
		c.StuckThreshold = 120 * time.Second
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = 30 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.WorkerID == "" {
		c.WorkerID = fmt.Sprintf("recovery-%d", time.Now().UnixNano())
	}
}

// Worker 轮询saga_states表，把卡住的实例一个个交给orchestrator.Resume重新推进
type Worker struct {
	store        stuckClaimer
	orchestrator Resumer
	cfg          Config

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorker 创建恢复worker
func NewWorker(store *sagastore.Store, orchestrator Resumer, cfg Config) *Worker {
	cfg.setDefaults()
	return &Worker{
		store:        store,
		orchestrator: orchestrator,
		cfg:          cfg,
		stopCh:       make(chan struct{}),
	}
}

// Start 启动后台轮询goroutine
func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(w.cfg.PollInterval)
		defer ticker.Stop()

		log.Printf("🩺 saga恢复worker已启动: interval=%s stuck_threshold=%s worker=%s", w.cfg.PollInterval, w.cfg.StuckThreshold, w.cfg.WorkerID)

		for {
			select {
			case <-w.stopCh:
				log.Printf("🩺 saga恢复worker停止中...")
				return
			case <-ticker.C:
				if err := w.Tick(context.Background()); err != nil {
					log.Printf("⚠️ saga恢复worker轮询出错: %v", err)
				}
			}
		}
	}()
}

// Stop 优雅停止
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	log.Printf("🩺 saga恢复worker已停止")
}

// Tick 处理一批卡住的saga实例；公开出来是为了让测试和手动触发不必等ticker
func (w *Worker) Tick(ctx context.Context) error {
	stuck, err := w.store.ClaimStuck(ctx, w.cfg.WorkerID, w.cfg.StuckThreshold, w.cfg.LeaseDuration, w.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("claim卡住的saga失败: %w", err)
	}

	if len(stuck) > 0 {
		log.Printf("🔄 saga恢复worker处理%d个卡住的实例", len(stuck))
	}

	for _, state := range stuck {
		w.resumeOne(ctx, state)
	}

	w.sampleStatusCounts(ctx)
	return nil
}

// sampleStatusCounts把(saga_type, status)分组计数刷到saga_status_count指标，
// 采样失败只记日志——指标缺一次采样不值得让整个Tick返回错误
func (w *Worker) sampleStatusCounts(ctx context.Context) {
	counts, err := w.store.CountByTypeAndStatus(ctx)
	if err != nil {
		log.Printf("⚠️ 采样saga状态分布失败: %v", err)
		return
	}
	for _, c := range counts {
		metrics.SetGaugeVec(metrics.SagaStatusCount, map[string]string{
			"saga_type": c.SagaType,
			"status":    string(c.Status),
		}, float64(c.Count))
	}
}

func (w *Worker) resumeOne(ctx context.Context, state *sagastore.State) {
	if err := w.orchestrator.Resume(ctx, state); err != nil {
		log.Printf("⚠️ 恢复saga %s (步骤 %s) 失败: %v", state.ID, state.CurrentStep, err)
	} else {
		log.Printf("✅ saga %s (步骤 %s) 已重新发出命令", state.ID, state.CurrentStep)
	}

	if err := w.store.ReleaseLease(ctx, state.ID); err != nil {
		log.Printf("⚠️ 释放saga %s 的恢复租约失败: %v", state.ID, err)
	}
}
