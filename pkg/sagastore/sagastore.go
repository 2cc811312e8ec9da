// Package sagastore 持久化saga实例状态
//
// 一个saga实例的全部状态——当前在哪一步、每一步成功/失败了没有、整体处于
// 正向执行还是补偿中——都落在一行saga_states记录里，用乐观锁版本号防止
// "恢复worker"和"正常回复处理"并发更新同一个saga而互相覆盖。
package sagastore

import (
	"encoding/json"
	"time"
)

// Status 是saga整体状态机（对应spec数据模型Saga State的FSM）：
// NotStarted → InProgress → {Completed | Compensating → {Compensated | Failed}}
type Status string

const (
	StatusNotStarted   Status = "not_started"
	StatusInProgress   Status = "in_progress"
	StatusCompleted    Status = "completed"
	StatusCompensating Status = "compensating"
	StatusCompensated  Status = "compensated"
	StatusFailed       Status = "failed"
)

// transitions 是saga整体状态的合法流转表，与teacher订单实体的CanTransitionTo
// 是同一种状态机写法：用map而非大段if/switch描述允许的转换
var transitions = map[Status][]Status{
	StatusNotStarted:   {StatusInProgress},
	StatusInProgress:   {StatusCompleted, StatusCompensating},
	StatusCompensating: {StatusCompensated, StatusFailed},
}

// CanTransitionTo 判断saga整体状态是否允许转换到目标状态
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Terminal 判断是否处于终态（Completed/Compensated/Failed都不再接受任何转换）
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCompensated || s == StatusFailed
}

// StepStatus 是单个步骤的状态
type StepStatus string

const (
	StepPending      StepStatus = "pending"
	StepInProgress   StepStatus = "in_progress"
	StepCompleted    StepStatus = "completed"
	StepCompensating StepStatus = "compensating"
	StepCompensated  StepStatus = "compensated"
	StepFailed       StepStatus = "failed"
)

// Terminal 判断步骤是否处于终态，OnReply用它实现幂等跳过
// （已是终态的步骤不会因为重复或迟到的回复再次被推进）
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepCompensated || s == StepFailed
}

// StepState 记录一个步骤的执行进度，是State.Steps JSON列里的一个条目
type StepState struct {
	Name        string     `json:"name"`
	Status      StepStatus `json:"status"`
	Attempt     int        `json:"attempt"`
	LastError   string     `json:"last_error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// State 对应saga_states表的一行
type State struct {
	ID            string `gorm:"primaryKey;size:64"`
	SagaType      string `gorm:"size:64;index:idx_saga_type_status"` // 与Status组成复合索引，服务metrics按类型/状态分组查询
	CorrelationID string `gorm:"uniqueIndex;size:64"`
	Status        Status `gorm:"size:16;index:idx_saga_type_status;index:idx_saga_status_updated"` // 前者服务metrics分组查询，后者服务恢复worker的扫描
	CurrentStep   string `gorm:"size:64"`
	Steps         []byte `gorm:"type:json"` // []StepState序列化
	Context       []byte `gorm:"type:json"` // 业务上下文（订单号、金额等），供每一步BuildCommand读取
	Version       int    // 乐观锁版本号
	LeaseOwner    string `gorm:"size:64"`
	LeaseExpires  time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time `gorm:"index:idx_saga_status_updated"` // 与Status组成复合索引，服务恢复worker的(status, updated_at)扫描
	CompletedAt   *time.Time
}

// TableName 固定表名
func (State) TableName() string { return "saga_states" }

// DecodeSteps 反序列化Steps列
func (s *State) DecodeSteps() ([]StepState, error) {
	if len(s.Steps) == 0 {
		return nil, nil
	}
	var steps []StepState
	if err := json.Unmarshal(s.Steps, &steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// EncodeSteps 序列化并写回Steps列
func (s *State) EncodeSteps(steps []StepState) error {
	body, err := json.Marshal(steps)
	if err != nil {
		return err
	}
	s.Steps = body
	return nil
}

// StepByName 在已解码的步骤列表中查找一个步骤，找不到返回nil
func StepByName(steps []StepState, name string) *StepState {
	for i := range steps {
		if steps[i].Name == name {
			return &steps[i]
		}
	}
	return nil
}
