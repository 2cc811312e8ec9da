// Package saga 实现编排式（orchestration-based）分布式事务协调
//
// 和教科书式的内存Saga（一个goroutine顺序跑完所有步骤，失败就地反向补偿）不同，
// 这里每一步的"执行"都是发一条命令事件到outbox、然后等对应服务把结果回复到
// reply topic——服务进程可能在这中间重启，回复可能几秒后才到。真正的状态机
// 转换只有一个入口：OnReply，它是幂等的，无论被同一条回复消息触发一次还是
// 多次都不会重复推进状态（和idempotent saga coordinator里"先查再判断是否已
// 是终态"是同一个思路）。Start只是把第一条命令发出去然后立刻返回，调用方
// 不会被整条saga的完成时间阻塞；真正想同步等待结果的调用方（测试、运维工具）
// 用Await。
//
// saga id和correlation-id是两个不同的键：saga id标识一次编排实例本身，
// correlation-id是贯穿整条业务链路（跨多个服务）的关联键，reply消息按
// correlation-id反查saga，而不是假设两者同值（见组件设计§9）。
package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/xiebiao/saga-commerce/pkg/envelope"
	apperrors "github.com/xiebiao/saga-commerce/pkg/errors"
	"github.com/xiebiao/saga-commerce/pkg/sagastore"
)

var tracer = otel.Tracer("saga-commerce/saga")

// maxCompensationAttempts是补偿失败时该步骤Attempt计数的上限（Attempt由正向发送
// 和补偿发送共同累加），达到后该步骤标记为Failed，
// 但反向扫描仍会继续推进到更早的步骤（见beginCompensation/handleCompensationReply）；
// 整条saga是否落Failed终态由beginCompensation扫完整条反向链路后统一判定，
// 落Failed后交由运维通过死信队列人工介入（对应错误分类里的CompensationFailure）
const maxCompensationAttempts = 5

// StepResult是某个步骤的参与方通过reply topic传回的执行结果
type StepResult struct {
	Success bool
	// Output在Success为true时合并进saga的业务上下文，供后续步骤读取
	// （例如charge_payment步骤把payment_id放进Output，create_shipment
	// 的BuildCommand就能从上下文里取到）
	Output map[string]interface{}
	// Err在Success为false时记录失败原因，写入StepState.LastError
	Err string
}

// StepDef是某一类saga（按SagaType注册一次）里某一步的静态定义。
// BuildCommand/BuildCompensation只读saga的业务上下文（一个map，从
// State.Context解码而来），不依赖进程内闭包变量，这样orchestrator重启后
// 依然能从持久化状态重建出完全相同的命令（恢复worker正是这样用的）。
type StepDef struct {
	Name  string
	Topic string
	// BuildCommand构造正向命令的payload，partitionKey决定落在transport的哪个分区
	BuildCommand func(ctx context.Context, sagaContext map[string]interface{}) (payload interface{}, partitionKey string, err error)
	// CompensationTopic为空表示这一步没有补偿动作（例如纯查询步骤）
	CompensationTopic string
	BuildCompensation func(ctx context.Context, sagaContext map[string]interface{}) (payload interface{}, partitionKey string, err error)
}

// Definition是一整类saga（如"create_order"）的步骤序列，进程启动时注册一次，
// 此后被所有该类型的saga实例复用，替代早期版本里按事件类型反射查找handler的
// 做法（见组件设计§9）
type Definition struct {
	Type  string
	Steps []StepDef

	// NotificationTopic为空表示这类saga完成/失败时不对外发通知事件。非空时，
	// saga成功进入Completed态经BuildConfirmedEvent发一条事件，整条回滚完成
	// （Compensated/Failed）经BuildCancelledEvent发一条——和正向/补偿命令一样
	// 走outbox落盘，orchestrator不直接碰transport（见组件设计§9）。
	NotificationTopic   string
	BuildConfirmedEvent func(ctx context.Context, sagaContext map[string]interface{}) (payload interface{}, partitionKey string, err error)
	BuildCancelledEvent func(ctx context.Context, sagaContext map[string]interface{}) (payload interface{}, partitionKey string, err error)
}

func (d *Definition) stepIndex(name string) int {
	for i, s := range d.Steps {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// OutboxEnqueuer是orchestrator发布命令事件所需的最小接口，由pkg/outbox.Store满足。
// 出站事件必须经过outbox落盘再由relay异步发布，orchestrator自己永远不直接碰transport。
type OutboxEnqueuer interface {
	Enqueue(ctx context.Context, topic string, maxRetries int, env *envelope.Envelope) error
}

// Config是orchestrator的运行参数，对应saga.*系列配置项
type Config struct {
	StepTimeout      time.Duration // saga.step_timeout_ms，默认30s
	OutboxMaxRetries int           // 复用outbox.max_retries
}

func (c *Config) setDefaults() {
	if c.StepTimeout <= 0 {
		c.StepTimeout = 30 * time.Second
	}
	if c.OutboxMaxRetries <= 0 {
		c.OutboxMaxRetries = 5
	}
}

// Orchestrator是saga编排器本体：持有每种saga类型的静态步骤定义，
// 把正向/补偿命令经outbox发出去，并通过OnReply把回复落成持久状态。
type Orchestrator struct {
	store   *sagastore.Store
	outbox  OutboxEnqueuer
	defs    map[string]*Definition
	cfg     Config
	waiters *waiterRegistry
}

// NewOrchestrator 创建编排器
func NewOrchestrator(store *sagastore.Store, outbox OutboxEnqueuer, cfg Config) *Orchestrator {
	cfg.setDefaults()
	return &Orchestrator{
		store:   store,
		outbox:  outbox,
		defs:    make(map[string]*Definition),
		cfg:     cfg,
		waiters: newWaiterRegistry(),
	}
}

// Register 注册一种saga类型的步骤定义
func (o *Orchestrator) Register(def *Definition) {
	o.defs[def.Type] = def
}

// Start 创建一个新的saga实例并发出第一步的命令，不等待该命令执行完成就返回。
// initialContext是这次saga实例独有的业务上下文（订单号、金额等），序列化后
// 存入State.Context，后续每一步的BuildCommand都能读到。
func (o *Orchestrator) Start(ctx context.Context, sagaID, sagaType, correlationID string, initialContext map[string]interface{}) error {
	def, ok := o.defs[sagaType]
	if !ok {
		return apperrors.Unrecoverable(nil, fmt.Sprintf("未注册的saga类型: %s", sagaType))
	}

	state, err := o.store.Create(ctx, sagaID, sagaType, correlationID)
	if err != nil {
		return err
	}
	if err := o.setContext(state, initialContext); err != nil {
		return err
	}

	state.Status = sagastore.StatusInProgress
	if err := o.store.CompareAndSwap(ctx, state); err != nil {
		return err
	}

	return o.beginStep(ctx, state, def, 0)
}

// Await提供一个可选的同步等待façade：调用方（通常是测试或运维工具）想阻塞
// 直到某一步有结果时使用，不参与正式的状态推进——状态转换永远发生在OnReply
// 里，Await只是在OnReply落盘后顺手把结果递给等待者；没人等的话这一步对
// 正确性毫无影响。
func (o *Orchestrator) Await(correlationID, stepName string, timeout time.Duration) (StepResult, bool) {
	if timeout <= 0 {
		timeout = o.cfg.StepTimeout
	}
	ch := o.waiters.register(correlationID, stepName)
	select {
	case result := <-ch:
		return result, true
	case <-time.After(timeout):
		o.waiters.cancel(correlationID, stepName)
		return StepResult{}, false
	}
}

// beginStep发布指定步骤的正向命令并把该步骤标记为in_progress；
// stepIndex越界（所有步骤都跑完了）意味着saga整体完成
func (o *Orchestrator) beginStep(ctx context.Context, state *sagastore.State, def *Definition, stepIndex int) error {
	if stepIndex >= len(def.Steps) {
		return o.finishCompleted(ctx, state, def)
	}

	ctx, span := tracer.Start(ctx, "saga.begin_step")
	defer span.End()

	step := def.Steps[stepIndex]
	sagaCtx, err := o.getContext(state)
	if err != nil {
		return err
	}

	payload, partitionKey, err := step.BuildCommand(ctx, sagaCtx)
	if err != nil {
		return fmt.Errorf("构造步骤%s的命令失败: %w", step.Name, err)
	}

	steps, err := state.DecodeSteps()
	if err != nil {
		return err
	}
	ss := sagastore.StepByName(steps, step.Name)
	attempt := 1
	now := time.Now()
	if ss != nil {
		attempt = ss.Attempt + 1
		ss.Status = sagastore.StepInProgress
		ss.Attempt = attempt
		ss.StartedAt = &now
	} else {
		steps = append(steps, sagastore.StepState{
			Name:      step.Name,
			Status:    sagastore.StepInProgress,
			Attempt:   attempt,
			StartedAt: &now,
		})
	}
	if err := state.EncodeSteps(steps); err != nil {
		return err
	}
	state.CurrentStep = step.Name

	env, err := envelope.NewDeterministic("saga."+step.Name, state.CorrelationID, step.Name, attempt, partitionKey, payload)
	if err != nil {
		return err
	}
	if err := o.outbox.Enqueue(ctx, step.Topic, o.cfg.OutboxMaxRetries, env); err != nil {
		return fmt.Errorf("发布步骤%s命令失败: %w", step.Name, err)
	}

	return o.casWithRetry(ctx, state)
}

// beginCompensation从fromIndex开始向前扫描，找到第一个已完成且定义了补偿动作的
// 步骤并发出其补偿命令；找不到任何需要补偿的步骤说明回滚已经全部完成。
// 为什么逆序：后执行的步骤可能依赖先执行的步骤的结果（先"创建订单"后"扣库存"，
// 补偿时应先"释放库存"再"取消订单"）。
func (o *Orchestrator) beginCompensation(ctx context.Context, state *sagastore.State, def *Definition, fromIndex int) error {
	steps, err := state.DecodeSteps()
	if err != nil {
		return err
	}

	for i := fromIndex; i >= 0; i-- {
		ss := sagastore.StepByName(steps, def.Steps[i].Name)
		if ss == nil || ss.Status != sagastore.StepCompleted {
			continue
		}
		return o.publishCompensation(ctx, state, def, steps, i)
	}

	// 没有更多需要补偿的步骤了。如果扫描过程中有步骤耗尽重试次数仍未补偿成功
	// （见handleCompensationReply），整条saga只能落Failed终态交运维人工介入；
	// 否则是正常的全量回滚，落Compensated。
	finalStatus := sagastore.StatusCompensated
	for i := range steps {
		if steps[i].Status == sagastore.StepFailed {
			finalStatus = sagastore.StatusFailed
			break
		}
	}
	if err := state.EncodeSteps(steps); err != nil {
		return err
	}
	state.Status = finalStatus
	now := time.Now()
	state.CompletedAt = &now
	if err := o.casWithRetry(ctx, state); err != nil {
		return err
	}
	return o.publishNotification(ctx, state, def, def.BuildCancelledEvent)
}

// publishCompensation为def.Steps[index]发出补偿命令并把它标记为compensating；
// 用于beginCompensation的首次触发，也用于handleCompensationReply对同一个仍处于
// compensating状态的步骤做重试（两种调用场景下该步骤本身的状态不同，
// 所以重试路径不走beginCompensation的"只挑StepCompleted"扫描）。
func (o *Orchestrator) publishCompensation(ctx context.Context, state *sagastore.State, def *Definition, steps []sagastore.StepState, index int) error {
	step := def.Steps[index]
	ss := sagastore.StepByName(steps, step.Name)

	if step.CompensationTopic == "" || step.BuildCompensation == nil {
		ss.Status = sagastore.StepCompensated
		if err := state.EncodeSteps(steps); err != nil {
			return err
		}
		return o.beginCompensation(ctx, state, def, index-1)
	}

	sagaCtx, err := o.getContext(state)
	if err != nil {
		return err
	}
	payload, partitionKey, err := step.BuildCompensation(ctx, sagaCtx)
	if err != nil {
		return fmt.Errorf("构造步骤%s的补偿命令失败: %w", step.Name, err)
	}

	attempt := ss.Attempt + 1
	ss.Status = sagastore.StepCompensating
	ss.Attempt = attempt

	env, err := envelope.NewDeterministic("saga."+step.Name+".compensate", state.CorrelationID, step.Name+".compensate", attempt, partitionKey, payload)
	if err != nil {
		return err
	}
	if err := o.outbox.Enqueue(ctx, step.CompensationTopic, o.cfg.OutboxMaxRetries, env); err != nil {
		return fmt.Errorf("发布步骤%s补偿命令失败: %w", step.Name, err)
	}

	state.CurrentStep = step.Name
	if err := state.EncodeSteps(steps); err != nil {
		return err
	}
	return o.casWithRetry(ctx, state)
}

func (o *Orchestrator) finishCompleted(ctx context.Context, state *sagastore.State, def *Definition) error {
	state.Status = sagastore.StatusCompleted
	now := time.Now()
	state.CompletedAt = &now
	if err := o.casWithRetry(ctx, state); err != nil {
		return err
	}
	return o.publishNotification(ctx, state, def, def.BuildConfirmedEvent)
}

// publishNotification发出saga终态的通知事件（供notification-service这类
// 只读inbox的参与方消费），build为nil或NotificationTopic为空都视为
// 这类saga没有配置通知，直接跳过，不算错误
func (o *Orchestrator) publishNotification(
	ctx context.Context,
	state *sagastore.State,
	def *Definition,
	build func(ctx context.Context, sagaContext map[string]interface{}) (interface{}, string, error),
) error {
	if def.NotificationTopic == "" || build == nil {
		return nil
	}
	sagaCtx, err := o.getContext(state)
	if err != nil {
		return err
	}
	payload, partitionKey, err := build(ctx, sagaCtx)
	if err != nil {
		return fmt.Errorf("构造saga %s的通知事件失败: %w", state.ID, err)
	}
	eventType := "order.order_confirmed"
	if state.Status != sagastore.StatusCompleted {
		eventType = "order.order_cancelled"
	}
	env, err := envelope.New(eventType, state.CorrelationID, partitionKey, payload)
	if err != nil {
		return err
	}
	return o.outbox.Enqueue(ctx, def.NotificationTopic, o.cfg.OutboxMaxRetries, env)
}

// OnReply是唯一的状态转换入口，由reply topic对应的inbox handler调用。
// 幂等性保证：先查saga和步骤当前状态，已经是终态就直接跳过，不重复推进
// （和idempotent saga coordinator里ExecuteStep的预检查是同一个思路）。
func (o *Orchestrator) OnReply(ctx context.Context, correlationID, stepName string, result StepResult) error {
	ctx, span := tracer.Start(ctx, "saga.on_reply")
	defer span.End()

	state, err := o.store.GetByCorrelationID(ctx, correlationID)
	if err != nil {
		return err
	}
	if state == nil {
		return apperrors.Unrecoverable(nil, fmt.Sprintf("收到未知correlation-id的回复: %s", correlationID))
	}
	if state.Status.Terminal() {
		return nil
	}

	def, ok := o.defs[state.SagaType]
	if !ok {
		return apperrors.Unrecoverable(nil, fmt.Sprintf("未注册的saga类型: %s", state.SagaType))
	}

	steps, err := state.DecodeSteps()
	if err != nil {
		return err
	}
	ss := sagastore.StepByName(steps, stepName)
	if ss == nil {
		return apperrors.Malformed(nil, fmt.Sprintf("saga %s没有步骤 %s 的记录", state.ID, stepName))
	}
	if ss.Status.Terminal() {
		return nil
	}

	var handleErr error
	if state.Status == sagastore.StatusCompensating {
		handleErr = o.handleCompensationReply(ctx, state, def, ss, steps, result)
	} else {
		handleErr = o.handleForwardReply(ctx, state, def, ss, steps, result)
	}
	if handleErr == nil {
		o.waiters.resolve(correlationID, stepName, result)
	}
	return handleErr
}

func (o *Orchestrator) handleForwardReply(ctx context.Context, state *sagastore.State, def *Definition, ss *sagastore.StepState, steps []sagastore.StepState, result StepResult) error {
	now := time.Now()

	if result.Success {
		ss.Status = sagastore.StepCompleted
		ss.CompletedAt = &now
		if err := state.EncodeSteps(steps); err != nil {
			return err
		}
		if err := o.mergeContext(state, result.Output); err != nil {
			return err
		}
		if err := o.casWithRetry(ctx, state); err != nil {
			return err
		}
		nextIndex := def.stepIndex(ss.Name) + 1
		return o.beginStep(ctx, state, def, nextIndex)
	}

	ss.Status = sagastore.StepFailed
	ss.LastError = truncate(result.Err, 512)
	ss.CompletedAt = &now
	if err := state.EncodeSteps(steps); err != nil {
		return err
	}
	state.Status = sagastore.StatusCompensating
	if err := o.casWithRetry(ctx, state); err != nil {
		return err
	}

	failedIndex := def.stepIndex(ss.Name)
	return o.beginCompensation(ctx, state, def, failedIndex-1)
}

func (o *Orchestrator) handleCompensationReply(ctx context.Context, state *sagastore.State, def *Definition, ss *sagastore.StepState, steps []sagastore.StepState, result StepResult) error {
	if !result.Success {
		if ss.Attempt >= maxCompensationAttempts {
			// 这一步的补偿耗尽重试次数，只把这一步标记为Failed，反向扫描继续
			// 推进到更早的已完成步骤——一步补偿不了不该连累其它步骤得不到
			// 补偿的机会(spec §4.7/§7)，saga最终是否落Failed由beginCompensation
			// 扫完整条反向链路后统一判定。
			ss.Status = sagastore.StepFailed
			ss.LastError = truncate(result.Err, 512)
			now := time.Now()
			ss.CompletedAt = &now
			if err := state.EncodeSteps(steps); err != nil {
				return err
			}
			if err := o.casWithRetry(ctx, state); err != nil {
				return err
			}
			return o.beginCompensation(ctx, state, def, def.stepIndex(ss.Name)-1)
		}
		// 重试同一个步骤的补偿动作——ss此时是compensating而非completed，
		// 不能走beginCompensation的扫描（它只挑completed的步骤）
		ss.LastError = truncate(result.Err, 512)
		if err := state.EncodeSteps(steps); err != nil {
			return err
		}
		return o.publishCompensation(ctx, state, def, steps, def.stepIndex(ss.Name))
	}

	ss.Status = sagastore.StepCompensated
	now := time.Now()
	ss.CompletedAt = &now
	if err := state.EncodeSteps(steps); err != nil {
		return err
	}
	if err := o.casWithRetry(ctx, state); err != nil {
		return err
	}

	return o.beginCompensation(ctx, state, def, def.stepIndex(ss.Name)-1)
}

// Resume由recovery worker对claim到的卡住saga调用：重新发布当前步骤的命令。
// NewDeterministic保证重发产生和上次完全相同的event-id，下游inbox天然去重，
// 不会因为重试而重复执行业务动作。
func (o *Orchestrator) Resume(ctx context.Context, state *sagastore.State) error {
	def, ok := o.defs[state.SagaType]
	if !ok {
		return apperrors.Unrecoverable(nil, fmt.Sprintf("未注册的saga类型: %s", state.SagaType))
	}

	idx := def.stepIndex(state.CurrentStep)
	if idx < 0 {
		return apperrors.Malformed(nil, fmt.Sprintf("saga %s的current_step %q不在定义中", state.ID, state.CurrentStep))
	}

	if state.Status == sagastore.StatusCompensating {
		return o.beginCompensation(ctx, state, def, idx)
	}
	return o.beginStep(ctx, state, def, idx)
}

func (o *Orchestrator) getContext(state *sagastore.State) (map[string]interface{}, error) {
	if len(state.Context) == 0 {
		return map[string]interface{}{}, nil
	}
	var ctx map[string]interface{}
	if err := json.Unmarshal(state.Context, &ctx); err != nil {
		return nil, err
	}
	return ctx, nil
}

func (o *Orchestrator) setContext(state *sagastore.State, sagaCtx map[string]interface{}) error {
	body, err := json.Marshal(sagaCtx)
	if err != nil {
		return err
	}
	state.Context = body
	return nil
}

func (o *Orchestrator) mergeContext(state *sagastore.State, patch map[string]interface{}) error {
	if len(patch) == 0 {
		return nil
	}
	current, err := o.getContext(state)
	if err != nil {
		return err
	}
	for k, v := range patch {
		current[k] = v
	}
	return o.setContext(state, current)
}

// casWithRetry在遇到乐观锁版本冲突时重新读取最新行再重试，最多重试3次，
// 应对recovery worker和正常回复路径并发触碰同一个saga的场景
func (o *Orchestrator) casWithRetry(ctx context.Context, state *sagastore.State) error {
	err := o.store.CompareAndSwap(ctx, state)
	for attempt := 0; err == sagastore.ErrVersionConflict && attempt < 3; attempt++ {
		fresh, getErr := o.store.Get(ctx, state.ID)
		if getErr != nil {
			return getErr
		}
		if fresh == nil {
			return apperrors.Unrecoverable(nil, fmt.Sprintf("saga %s在更新时消失了", state.ID))
		}
		fresh.Status = state.Status
		fresh.CurrentStep = state.CurrentStep
		fresh.Steps = state.Steps
		fresh.Context = state.Context
		fresh.CompletedAt = state.CompletedAt
		*state = *fresh
		err = o.store.CompareAndSwap(ctx, state)
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
