// Package constraint 提供课位约束检查与惩罚评估
package constraint

import (
	"github.com/google/uuid"

	"github.com/paike/paike/pkg/model"
	"github.com/paike/paike/pkg/scheduler/grid"
)

// Weights 惩罚权重。数值为经验调参结果，可整体覆盖；
// 必须保持的契约是严重度次序：
// 硬冲突 ≫ 跨课间连堂 > 同日重复 > 教师空档 > 每日超载 > 每周超载
type Weights struct {
	Overlap          float64 `json:"overlap"`           // 教师/班级硬冲突（按碰撞占用者数量累计）
	IntervalStraddle float64 `json:"interval_straddle"` // 连堂跨越课间大休或越过末节
	DailyRepeat      float64 `json:"daily_repeat"`      // 同一课程同班同日重复出现
	TeacherGap       float64 `json:"teacher_gap"`       // 教师当日课表空档
	DailyOverload    float64 `json:"daily_overload"`    // 教师每日节数超限
	WeeklyOverload   float64 `json:"weekly_overload"`   // 教师每周节数超限

	MaxDailyPeriods  int `json:"max_daily_periods"`
	MaxWeeklyPeriods int `json:"max_weekly_periods"`
}

// DefaultWeights 默认权重
func DefaultWeights() Weights {
	return Weights{
		Overlap:          1000,
		IntervalStraddle: 500,
		DailyRepeat:      200,
		TeacherGap:       30,
		DailyOverload:    10,
		WeeklyOverload:   2,
		MaxDailyPeriods:  6,
		MaxWeeklyPeriods: 26,
	}
}

// Evaluator 约束评估器：两种求解策略共用同一套占用查询原语
type Evaluator struct {
	grid    *grid.Grid
	cfg     *model.ScheduleConfig
	weights Weights
}

// New 创建约束评估器
func New(g *grid.Grid, cfg *model.ScheduleConfig, weights Weights) *Evaluator {
	return &Evaluator{grid: g, cfg: cfg, weights: weights}
}

// Weights 返回当前权重
func (e *Evaluator) Weights() Weights { return e.weights }

// IsSlotFree 课程的全部班级与教师在（天,节）均空闲
func (e *Evaluator) IsSlotFree(l *model.Lesson, day, period int) bool {
	for _, classID := range l.ClassIDs {
		if !e.grid.IsFree(classID, day, period) {
			return false
		}
	}
	for _, teacherID := range l.TeacherIDs {
		if !e.grid.IsFree(teacherID, day, period) {
			return false
		}
	}
	return true
}

// CanPlaceOnDay 该课程当天尚未在任何关联班级出现。
// relaxed 模式下恒为真（约束放宽后允许同日重复）。
func (e *Evaluator) CanPlaceOnDay(l *model.Lesson, day int, relaxed bool) bool {
	if relaxed {
		return true
	}
	for _, classID := range l.ClassIDs {
		if e.grid.DailyCount(classID, day, l.ID) > 0 {
			return false
		}
	}
	return true
}

// IsValidDoubleStart 节次可作为连堂起始：不是末节，且其后没有课间大休
func (e *Evaluator) IsValidDoubleStart(period int) bool {
	return period < e.cfg.NumberOfPeriods && !e.cfg.IsInterval(period)
}

// CanPlace 组合硬约束检查：天级出现约束 + 课块全部节次空闲 + 连堂起始合法
func (e *Evaluator) CanPlace(l *model.Lesson, day, period int, isDouble, relaxed bool) bool {
	if !e.CanPlaceOnDay(l, day, relaxed) {
		return false
	}
	if isDouble {
		if !e.IsValidDoubleStart(period) {
			return false
		}
		return e.IsSlotFree(l, day, period) && e.IsSlotFree(l, day, period+1)
	}
	return e.IsSlotFree(l, day, period)
}

// Penalty 评估候选放置的加权惩罚（随机策略用）。
// 课程尚未放入网格；返回值越小越好。
func (e *Evaluator) Penalty(l *model.Lesson, day, period int, isDouble bool) float64 {
	var penalty float64

	periods := []int{period}
	if isDouble {
		periods = append(periods, period+1)
		if !e.IsValidDoubleStart(period) {
			penalty += e.weights.IntervalStraddle
		}
	}

	// 硬冲突：按每个碰撞占用者计
	for _, p := range periods {
		for _, classID := range l.ClassIDs {
			penalty += e.weights.Overlap * float64(len(e.grid.Occupants(classID, day, p)))
		}
		for _, teacherID := range l.TeacherIDs {
			penalty += e.weights.Overlap * float64(len(e.grid.Occupants(teacherID, day, p)))
		}
	}

	// 同日重复
	for _, classID := range l.ClassIDs {
		if e.grid.DailyCount(classID, day, l.ID) > 0 {
			penalty += e.weights.DailyRepeat
		}
	}

	// 教师侧软约束
	need := len(periods)
	for _, teacherID := range l.TeacherIDs {
		penalty += e.weights.TeacherGap * float64(e.teacherGapWith(teacherID, day, periods))

		daily := e.grid.TeacherPeriodsOnDay(teacherID, day) + need
		if daily > e.weights.MaxDailyPeriods {
			penalty += e.weights.DailyOverload * float64(daily-e.weights.MaxDailyPeriods)
		}
		weekly := e.grid.TeacherPeriodsInWeek(teacherID) + need
		if weekly > e.weights.MaxWeeklyPeriods {
			penalty += e.weights.WeeklyOverload * float64(weekly-e.weights.MaxWeeklyPeriods)
		}
	}

	return penalty
}

// PlacedPenalty 评估已放置课块的惩罚。
// 与 Penalty 的差别：占用查询会命中自身，硬冲突只统计额外占用者。
func (e *Evaluator) PlacedPenalty(l *model.Lesson, day, period int, isDouble bool) float64 {
	penalty := e.PlacedConflict(l, day, period, isDouble)

	for _, teacherID := range l.TeacherIDs {
		penalty += e.weights.TeacherGap * float64(e.teacherGap(teacherID, day))

		daily := e.grid.TeacherPeriodsOnDay(teacherID, day)
		if daily > e.weights.MaxDailyPeriods {
			penalty += e.weights.DailyOverload * float64(daily-e.weights.MaxDailyPeriods)
		}
		weekly := e.grid.TeacherPeriodsInWeek(teacherID)
		if weekly > e.weights.MaxWeeklyPeriods {
			penalty += e.weights.WeeklyOverload * float64(weekly-e.weights.MaxWeeklyPeriods)
		}
	}
	return penalty
}

// PlacedConflict 已放置课块的硬冲突惩罚：
// 同单元的额外占用者、非法连堂起始、同日重复出现
func (e *Evaluator) PlacedConflict(l *model.Lesson, day, period int, isDouble bool) float64 {
	var penalty float64

	periods := []int{period}
	if isDouble {
		periods = append(periods, period+1)
		if !e.IsValidDoubleStart(period) {
			penalty += e.weights.IntervalStraddle
		}
	}

	for _, p := range periods {
		for _, classID := range l.ClassIDs {
			if extra := len(e.grid.Occupants(classID, day, p)) - 1; extra > 0 {
				penalty += e.weights.Overlap * float64(extra)
			}
		}
		for _, teacherID := range l.TeacherIDs {
			if extra := len(e.grid.Occupants(teacherID, day, p)) - 1; extra > 0 {
				penalty += e.weights.Overlap * float64(extra)
			}
		}
	}

	for _, classID := range l.ClassIDs {
		if e.grid.DailyCount(classID, day, l.ID) > 1 {
			penalty += e.weights.DailyRepeat
		}
	}

	return penalty
}

// teacherGap 教师当日课表的空档节数（首末节之间未排课的节数）
func (e *Evaluator) teacherGap(teacherID uuid.UUID, day int) int {
	occupied := e.grid.TeacherOccupiedPeriods(teacherID, day)
	if len(occupied) < 2 {
		return 0
	}
	first, last := occupied[0], occupied[len(occupied)-1]
	return (last - first + 1) - len(occupied)
}

// teacherGapWith 在候选节次加入后教师当日的空档节数
func (e *Evaluator) teacherGapWith(teacherID uuid.UUID, day int, candidate []int) int {
	occupied := e.grid.TeacherOccupiedPeriods(teacherID, day)
	set := make(map[int]bool, len(occupied)+len(candidate))
	for _, p := range occupied {
		set[p] = true
	}
	for _, p := range candidate {
		set[p] = true
	}
	first, last, count := 0, 0, 0
	for p := 1; p <= e.grid.Periods(); p++ {
		if set[p] {
			if count == 0 {
				first = p
			}
			last = p
			count++
		}
	}
	if count < 2 {
		return 0
	}
	return (last - first + 1) - count
}
