// Package solver 提供排课求解器。
// 两种搜索策略（确定性回溯与随机局部搜索）实现同一 Solver 接口，
// 无论由哪种策略（或外部替代实现）产出，结果契约完全一致。
package solver

import (
	"context"

	"github.com/google/uuid"

	"github.com/paike/paike/pkg/errors"
	"github.com/paike/paike/pkg/model"
)

// Input 一次求解的全部输入，求解期间只读
type Input struct {
	Lessons []*model.Lesson       `json:"lessons"`
	Classes []*model.Class        `json:"classes"`
	Config  *model.ScheduleConfig `json:"config"`
}

// Solver 求解器接口
type Solver interface {
	// Solve 执行求解。不可行不是错误：预算内未找到完整解时
	// 返回 Success=false 的结果与逐课程诊断；错误仅用于无效输入与取消。
	Solve(ctx context.Context, in *Input) (*model.ScheduleResult, error)

	// Name 返回求解器名称
	Name() string
}

// Validate 在搜索开始前校验输入；校验失败的输入不会重试
func (in *Input) Validate() error {
	if in.Config == nil {
		return errors.InvalidInput("config", "未提供网格参数")
	}
	if err := in.Config.Validate(); err != nil {
		return errors.Wrap(err, errors.CodeInvalidInput, "网格参数无效")
	}
	if len(in.Lessons) == 0 {
		return errors.InvalidInput("lessons", "课程列表为空")
	}
	if len(in.Classes) == 0 {
		return errors.InvalidInput("classes", "班级列表为空")
	}

	classSet := make(map[uuid.UUID]bool, len(in.Classes))
	for _, c := range in.Classes {
		if c.ID == uuid.Nil {
			return errors.InvalidInput("classes", "班级缺少ID")
		}
		classSet[c.ID] = true
	}

	needsDouble := false
	for _, l := range in.Lessons {
		if err := l.Validate(); err != nil {
			return errors.Wrap(err, errors.CodeInvalidInput, "课程定义无效")
		}
		for _, classID := range l.ClassIDs {
			if !classSet[classID] {
				return errors.UnresolvedReference("班级", classID.String()).
					WithField("lesson", l.Name)
			}
		}
		if l.NumberOfDoubles > 0 {
			needsDouble = true
		}
	}

	if needsDouble && len(in.Config.ValidDoubleStarts()) == 0 {
		return errors.InvalidInput("config", "存在连堂需求，但网格中没有任何合法连堂起点")
	}

	return nil
}

// InterruptError 把上下文中断归因为超时或主动取消，
// 两种策略在迭代边界停止时共用此归因
func InterruptError(ctx context.Context, details string) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.Timeout(details)
	}
	return errors.Wrap(ctx.Err(), errors.CodeCancelled, details)
}

// lessonByID 建立课程索引
func lessonByID(lessons []*model.Lesson) map[uuid.UUID]*model.Lesson {
	m := make(map[uuid.UUID]*model.Lesson, len(lessons))
	for _, l := range lessons {
		m[l.ID] = l
	}
	return m
}
