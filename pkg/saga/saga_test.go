package saga

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/xiebiao/saga-commerce/pkg/envelope"
	"github.com/xiebiao/saga-commerce/pkg/sagastore"
)

// fakeOutbox把发出去的信封记在内存里，不涉及真实的发件箱表，
// 方便断言orchestrator在每一步发了什么
type fakeOutbox struct {
	enqueued []struct {
		topic string
		env   *envelope.Envelope
	}
}

func (f *fakeOutbox) Enqueue(ctx context.Context, topic string, maxRetries int, env *envelope.Envelope) error {
	f.enqueued = append(f.enqueued, struct {
		topic string
		env   *envelope.Envelope
	}{topic, env})
	return nil
}

func (f *fakeOutbox) last() (string, *envelope.Envelope) {
	if len(f.enqueued) == 0 {
		return "", nil
	}
	e := f.enqueued[len(f.enqueued)-1]
	return e.topic, e.env
}

func newMockSagaStore(t *testing.T) (*sagastore.Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("gorm.Open() error = %v", err)
	}
	return sagastore.NewStore(gdb), mock, func() { sqlDB.Close() }
}

func twoStepDefinition() *Definition {
	return &Definition{
		Type: "create_order",
		Steps: []StepDef{
			{
				Name:  "reserve_inventory",
				Topic: "inventory.commands",
				BuildCommand: func(ctx context.Context, sagaCtx map[string]interface{}) (interface{}, string, error) {
					return map[string]interface{}{"book_id": sagaCtx["book_id"]}, "order-1", nil
				},
				CompensationTopic: "inventory.commands",
				BuildCompensation: func(ctx context.Context, sagaCtx map[string]interface{}) (interface{}, string, error) {
					return map[string]interface{}{"book_id": sagaCtx["book_id"]}, "order-1", nil
				},
			},
			{
				Name:  "charge_payment",
				Topic: "payment.commands",
				BuildCommand: func(ctx context.Context, sagaCtx map[string]interface{}) (interface{}, string, error) {
					return map[string]interface{}{"order_id": sagaCtx["order_id"]}, "order-1", nil
				},
				CompensationTopic: "payment.commands",
				BuildCompensation: func(ctx context.Context, sagaCtx map[string]interface{}) (interface{}, string, error) {
					return map[string]interface{}{"order_id": sagaCtx["order_id"]}, "order-1", nil
				},
			},
		},
	}
}

// twoStepDefinitionWithNotification是twoStepDefinition()之外单独的一份定义，
// 避免给共享fixture加字段影响其它只关心命令/补偿发布的用例
func twoStepDefinitionWithNotification() *Definition {
	def := twoStepDefinition()
	def.NotificationTopic = "notification.events"
	def.BuildConfirmedEvent = func(ctx context.Context, sagaCtx map[string]interface{}) (interface{}, string, error) {
		return map[string]interface{}{"order_id": sagaCtx["order_id"]}, "order-1", nil
	}
	def.BuildCancelledEvent = func(ctx context.Context, sagaCtx map[string]interface{}) (interface{}, string, error) {
		return map[string]interface{}{"order_id": sagaCtx["order_id"]}, "order-1", nil
	}
	return def
}

func TestOrchestrator_OnReply_LastStepCompletionPublishesConfirmationNotification(t *testing.T) {
	store, mock, closeFn := newMockSagaStore(t)
	defer closeFn()

	rows := sqlmock.NewRows([]string{"id", "saga_type", "correlation_id", "status", "current_step", "steps", "context", "version"}).
		AddRow("saga-7", "create_order", "corr-7", "in_progress", "charge_payment",
			[]byte(`[{"name":"reserve_inventory","status":"completed","attempt":1},{"name":"charge_payment","status":"in_progress","attempt":1}]`),
			[]byte(`{"book_id":"b1","order_id":"o-1"}`), 2)
	mock.ExpectQuery("SELECT \\* FROM `saga_states`").WillReturnRows(rows)
	mock.ExpectExec("UPDATE `saga_states`").WillReturnResult(sqlmock.NewResult(1, 1)) // step completed
	mock.ExpectExec("UPDATE `saga_states`").WillReturnResult(sqlmock.NewResult(1, 1)) // saga -> completed

	ob := &fakeOutbox{}
	orc := NewOrchestrator(store, ob, Config{})
	orc.Register(twoStepDefinitionWithNotification())

	err := orc.OnReply(context.Background(), "corr-7", "charge_payment", StepResult{Success: true})
	if err != nil {
		t.Fatalf("OnReply() error = %v", err)
	}

	topic, env := ob.last()
	if topic != "notification.events" {
		t.Errorf("topic = %q, want notification.events", topic)
	}
	if env.EventType != "order.order_confirmed" {
		t.Errorf("event type = %q, want order.order_confirmed", env.EventType)
	}
	if env.CorrelationID != "corr-7" {
		t.Errorf("correlation id = %q, want corr-7", env.CorrelationID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestOrchestrator_Start_PublishesFirstStep(t *testing.T) {
	store, mock, closeFn := newMockSagaStore(t)
	defer closeFn()

	mock.ExpectExec("INSERT INTO `saga_states`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE `saga_states`").WillReturnResult(sqlmock.NewResult(1, 1)) // InProgress
	mock.ExpectExec("UPDATE `saga_states`").WillReturnResult(sqlmock.NewResult(1, 1)) // step in_progress

	ob := &fakeOutbox{}
	orc := NewOrchestrator(store, ob, Config{})
	orc.Register(twoStepDefinition())

	err := orc.Start(context.Background(), "saga-1", "create_order", "corr-1", map[string]interface{}{"book_id": "b1"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	topic, env := ob.last()
	if topic != "inventory.commands" {
		t.Errorf("topic = %q, want inventory.commands", topic)
	}
	if env.EventType != "saga.reserve_inventory" {
		t.Errorf("event type = %q", env.EventType)
	}
	if env.CorrelationID != "corr-1" {
		t.Errorf("correlation id = %q, want corr-1", env.CorrelationID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestOrchestrator_OnReply_AdvancesToNextStep(t *testing.T) {
	store, mock, closeFn := newMockSagaStore(t)
	defer closeFn()

	sagaID := "saga-2"
	rows := sqlmock.NewRows([]string{"id", "saga_type", "correlation_id", "status", "current_step", "steps", "context", "version"}).
		AddRow(sagaID, "create_order", "corr-2", "in_progress", "reserve_inventory",
			[]byte(`[{"name":"reserve_inventory","status":"in_progress","attempt":1}]`),
			[]byte(`{"book_id":"b1"}`), 1)
	mock.ExpectQuery("SELECT \\* FROM `saga_states`").WillReturnRows(rows)
	mock.ExpectExec("UPDATE `saga_states`").WillReturnResult(sqlmock.NewResult(1, 1)) // step completed
	mock.ExpectExec("UPDATE `saga_states`").WillReturnResult(sqlmock.NewResult(1, 1)) // next step in_progress

	ob := &fakeOutbox{}
	orc := NewOrchestrator(store, ob, Config{})
	orc.Register(twoStepDefinition())

	err := orc.OnReply(context.Background(), "corr-2", "reserve_inventory", StepResult{
		Success: true,
		Output:  map[string]interface{}{"order_id": "o-1"},
	})
	if err != nil {
		t.Fatalf("OnReply() error = %v", err)
	}

	topic, env := ob.last()
	if topic != "payment.commands" {
		t.Errorf("topic = %q, want payment.commands", topic)
	}
	if env.EventType != "saga.charge_payment" {
		t.Errorf("event type = %q", env.EventType)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestOrchestrator_OnReply_FailureTriggersCompensation(t *testing.T) {
	store, mock, closeFn := newMockSagaStore(t)
	defer closeFn()

	sagaID := "saga-3"
	rows := sqlmock.NewRows([]string{"id", "saga_type", "correlation_id", "status", "current_step", "steps", "context", "version"}).
		AddRow(sagaID, "create_order", "corr-3", "in_progress", "charge_payment",
			[]byte(`[{"name":"reserve_inventory","status":"completed","attempt":1},{"name":"charge_payment","status":"in_progress","attempt":1}]`),
			[]byte(`{"book_id":"b1","order_id":"o-1"}`), 2)
	mock.ExpectQuery("SELECT \\* FROM `saga_states`").WillReturnRows(rows)
	mock.ExpectExec("UPDATE `saga_states`").WillReturnResult(sqlmock.NewResult(1, 1)) // status -> compensating
	mock.ExpectExec("UPDATE `saga_states`").WillReturnResult(sqlmock.NewResult(1, 1)) // step -> compensating, compensation published

	ob := &fakeOutbox{}
	orc := NewOrchestrator(store, ob, Config{})
	orc.Register(twoStepDefinition())

	err := orc.OnReply(context.Background(), "corr-3", "charge_payment", StepResult{
		Success: false,
		Err:     "余额不足",
	})
	if err != nil {
		t.Fatalf("OnReply() error = %v", err)
	}

	topic, env := ob.last()
	if topic != "inventory.commands" {
		t.Errorf("compensation topic = %q, want inventory.commands", topic)
	}
	if env.EventType != "saga.reserve_inventory.compensate" {
		t.Errorf("event type = %q", env.EventType)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestOrchestrator_OnReply_SkipsTerminalSaga(t *testing.T) {
	store, mock, closeFn := newMockSagaStore(t)
	defer closeFn()

	rows := sqlmock.NewRows([]string{"id", "saga_type", "correlation_id", "status", "current_step", "steps", "context", "version"}).
		AddRow("saga-4", "create_order", "corr-4", "completed", "charge_payment",
			[]byte(`[{"name":"reserve_inventory","status":"completed"},{"name":"charge_payment","status":"completed"}]`),
			[]byte(`{}`), 3)
	mock.ExpectQuery("SELECT \\* FROM `saga_states`").WillReturnRows(rows)

	ob := &fakeOutbox{}
	orc := NewOrchestrator(store, ob, Config{})
	orc.Register(twoStepDefinition())

	err := orc.OnReply(context.Background(), "corr-4", "charge_payment", StepResult{Success: true})
	if err != nil {
		t.Fatalf("OnReply() error = %v", err)
	}
	if len(ob.enqueued) != 0 {
		t.Errorf("expected no new commands published for a terminal saga, got %d", len(ob.enqueued))
	}
}

func TestOrchestrator_OnReply_CompensationExhaustionContinuesReverseScan(t *testing.T) {
	store, mock, closeFn := newMockSagaStore(t)
	defer closeFn()

	sagaID := "saga-8"
	rows := sqlmock.NewRows([]string{"id", "saga_type", "correlation_id", "status", "current_step", "steps", "context", "version"}).
		AddRow(sagaID, "create_order", "corr-8", "compensating", "charge_payment",
			[]byte(`[{"name":"reserve_inventory","status":"completed","attempt":1},{"name":"charge_payment","status":"compensating","attempt":5}]`),
			[]byte(`{"book_id":"b1","order_id":"o-1"}`), 2)
	mock.ExpectQuery("SELECT \\* FROM `saga_states`").WillReturnRows(rows)
	mock.ExpectExec("UPDATE `saga_states`").WillReturnResult(sqlmock.NewResult(1, 1)) // charge_payment -> Failed, saga仍是compensating
	mock.ExpectExec("UPDATE `saga_states`").WillReturnResult(sqlmock.NewResult(1, 1)) // reserve_inventory补偿命令已发布

	ob := &fakeOutbox{}
	orc := NewOrchestrator(store, ob, Config{})
	orc.Register(twoStepDefinition())

	err := orc.OnReply(context.Background(), "corr-8", "charge_payment", StepResult{
		Success: false,
		Err:     "支付网关超时",
	})
	if err != nil {
		t.Fatalf("OnReply() error = %v", err)
	}

	// charge_payment的补偿耗尽重试次数不应该让saga止步于此——反向扫描必须
	// 继续推进，给reserve_inventory一个被补偿的机会（spec §4.7/§7）
	topic, env := ob.last()
	if topic != "inventory.commands" {
		t.Errorf("compensation topic = %q, want inventory.commands (reverse scan must continue past the exhausted step)", topic)
	}
	if env.EventType != "saga.reserve_inventory.compensate" {
		t.Errorf("event type = %q, want saga.reserve_inventory.compensate", env.EventType)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestOrchestrator_BeginCompensation_FailsOverallSagaOnlyAfterFullScan验证：
// 只有当反向扫描走到头、且链路上确实有步骤耗尽重试次数未能补偿成功时，
// 整条saga才落Failed终态——否则应该是Compensated。这里直接构造"reserve_inventory
// 已经是Failed、charge_payment刚被标记Compensated"这个扫描末尾的状态，
// 绕开完整的回复序列，单测beginCompensation的终态判定逻辑。
func TestOrchestrator_BeginCompensation_FailsOverallSagaOnlyAfterFullScan(t *testing.T) {
	store, mock, closeFn := newMockSagaStore(t)
	defer closeFn()

	sagaID := "saga-9"
	rows := sqlmock.NewRows([]string{"id", "saga_type", "correlation_id", "status", "current_step", "steps", "context", "version"}).
		AddRow(sagaID, "create_order", "corr-9", "compensating", "reserve_inventory",
			[]byte(`[{"name":"reserve_inventory","status":"failed","attempt":5},{"name":"charge_payment","status":"compensated","attempt":1}]`),
			[]byte(`{"book_id":"b1","order_id":"o-1"}`), 3)
	mock.ExpectQuery("SELECT \\* FROM `saga_states`").WillReturnRows(rows)
	mock.ExpectExec("UPDATE `saga_states`").WillReturnResult(sqlmock.NewResult(1, 1)) // saga -> Failed

	ob := &fakeOutbox{}
	orc := NewOrchestrator(store, ob, Config{})
	orc.Register(twoStepDefinitionWithNotification())

	state, err := store.Get(context.Background(), sagaID)
	if err != nil {
		t.Fatalf("store.Get() error = %v", err)
	}
	def := twoStepDefinitionWithNotification()

	if err := orc.beginCompensation(context.Background(), state, def, -1); err != nil {
		t.Fatalf("beginCompensation() error = %v", err)
	}

	if state.Status != sagastore.StatusFailed {
		t.Errorf("state.Status = %q, want %q", state.Status, sagastore.StatusFailed)
	}

	topic, env := ob.last()
	if topic != "notification.events" {
		t.Errorf("topic = %q, want notification.events", topic)
	}
	if env.EventType != "order.order_cancelled" {
		t.Errorf("event type = %q, want order.order_cancelled", env.EventType)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestOrchestrator_Await_TimesOutWithoutReply(t *testing.T) {
	store, _, closeFn := newMockSagaStore(t)
	defer closeFn()

	orc := NewOrchestrator(store, &fakeOutbox{}, Config{StepTimeout: 20 * time.Millisecond})
	_, ok := orc.Await("corr-5", "reserve_inventory", 20*time.Millisecond)
	if ok {
		t.Error("expected Await to time out, got a result")
	}
}

func TestOrchestrator_Await_ResolvedByOnReply(t *testing.T) {
	orc := NewOrchestrator(nil, &fakeOutbox{}, Config{})

	done := make(chan StepResult, 1)
	go func() {
		result, ok := orc.Await("corr-6", "reserve_inventory", time.Second)
		if ok {
			done <- result
		}
	}()

	time.Sleep(10 * time.Millisecond)
	orc.waiters.resolve("corr-6", "reserve_inventory", StepResult{Success: true})

	select {
	case result := <-done:
		if !result.Success {
			t.Error("expected Await to observe a successful result")
		}
	case <-time.After(time.Second):
		t.Fatal("Await did not return after resolve")
	}
}
