package constraint

import (
	"testing"

	"github.com/google/uuid"

	"github.com/paike/paike/pkg/model"
	"github.com/paike/paike/pkg/scheduler/grid"
)

func testConfig() *model.ScheduleConfig {
	return &model.ScheduleConfig{
		DaysOfWeek:      []string{"周一", "周二", "周三", "周四", "周五"},
		NumberOfPeriods: 7,
		IntervalSlots:   []model.IntervalSlot{{AfterPeriod: 3}},
	}
}

func newLesson() *model.Lesson {
	return &model.Lesson{
		ID:              uuid.New(),
		Name:            "数学",
		SubjectIDs:      []uuid.UUID{uuid.New()},
		TeacherIDs:      []uuid.UUID{uuid.New()},
		ClassIDs:        []uuid.UUID{uuid.New()},
		NumberOfSingles: 2,
	}
}

func newEvaluator() (*Evaluator, *grid.Grid, *model.ScheduleConfig) {
	cfg := testConfig()
	g := grid.New(cfg.Days(), cfg.NumberOfPeriods)
	return New(g, cfg, DefaultWeights()), g, cfg
}

func TestWeights_SeverityOrdering(t *testing.T) {
	w := DefaultWeights()

	// 严重度契约：硬冲突 ≫ 跨课间连堂 > 同日重复 > 教师空档 > 每日超载 > 每周超载
	if !(w.Overlap > w.IntervalStraddle &&
		w.IntervalStraddle > w.DailyRepeat &&
		w.DailyRepeat > w.TeacherGap &&
		w.TeacherGap > w.DailyOverload &&
		w.DailyOverload > w.WeeklyOverload) {
		t.Errorf("权重严重度次序被破坏: %+v", w)
	}
}

func TestEvaluator_IsValidDoubleStart(t *testing.T) {
	e, _, _ := newEvaluator()

	for _, p := range []int{1, 2, 4, 5, 6} {
		if !e.IsValidDoubleStart(p) {
			t.Errorf("第%d节应可作连堂起始", p)
		}
	}
	if e.IsValidDoubleStart(3) {
		t.Error("大休前一节不可作连堂起始")
	}
	if e.IsValidDoubleStart(7) {
		t.Error("末节不可作连堂起始")
	}
}

func TestEvaluator_CanPlace(t *testing.T) {
	e, g, _ := newEvaluator()
	l := newLesson()

	if !e.CanPlace(l, 0, 1, false, false) {
		t.Error("空网格应可放置")
	}

	g.Place(l, 0, 1, false)

	// 同日重复被天级约束拒绝
	if e.CanPlace(l, 0, 4, false, false) {
		t.Error("同日重复应被拒绝")
	}
	// 放宽模式下允许同日重复
	if !e.CanPlace(l, 0, 4, false, true) {
		t.Error("放宽模式应允许同日重复")
	}
	// 已占单元不可重复占用
	if e.CanPlace(l, 0, 1, false, true) {
		t.Error("已占单元应被拒绝")
	}
}

func TestEvaluator_CanPlace_DoubleNeedsBothPeriods(t *testing.T) {
	e, g, _ := newEvaluator()
	l := newLesson()
	other := newLesson()
	other.ClassIDs = []uuid.UUID{l.ClassIDs[0]}

	// 第5节被占，起始于第4节的连堂需要 4+5 两节
	g.Place(other, 1, 5, false)
	if e.CanPlace(l, 1, 4, true, false) {
		t.Error("第二节被占的连堂应被拒绝")
	}
	if !e.CanPlace(l, 1, 1, true, false) {
		t.Error("两节均空闲的连堂应可放置")
	}
}

func TestEvaluator_PenaltyOrdering(t *testing.T) {
	e, g, _ := newEvaluator()
	l := newLesson()
	other := newLesson()
	other.ClassIDs = []uuid.UUID{l.ClassIDs[0]}

	g.Place(other, 0, 2, false)

	free := e.Penalty(l, 1, 2, false)
	collision := e.Penalty(l, 0, 2, false)
	straddle := e.Penalty(l, 0, 3, true)

	if free != 0 {
		t.Errorf("空闲课位惩罚应为0, got %v", free)
	}
	if collision <= straddle {
		t.Errorf("硬冲突(%v)应重于跨课间连堂(%v)", collision, straddle)
	}
	if straddle <= 0 {
		t.Errorf("跨课间连堂应有惩罚, got %v", straddle)
	}
}

func TestEvaluator_PenaltyDailyRepeat(t *testing.T) {
	e, g, _ := newEvaluator()
	l := newLesson()

	g.Place(l, 0, 1, false)

	repeat := e.Penalty(l, 0, 4, false)
	fresh := e.Penalty(l, 1, 4, false)
	if repeat <= fresh {
		t.Errorf("同日重复(%v)应重于新天放置(%v)", repeat, fresh)
	}
	if repeat < DefaultWeights().DailyRepeat {
		t.Errorf("同日重复惩罚至少为 DailyRepeat 权重, got %v", repeat)
	}
}

func TestEvaluator_PlacedConflict(t *testing.T) {
	e, g, _ := newEvaluator()
	l := newLesson()
	other := newLesson()
	other.ClassIDs = []uuid.UUID{l.ClassIDs[0]}

	// 无碰撞时已放置课块冲突为0
	g.Place(l, 0, 1, false)
	if got := e.PlacedConflict(l, 0, 1, false); got != 0 {
		t.Errorf("无碰撞冲突应为0, got %v", got)
	}

	// 同单元再放一门课后双方都有冲突
	g.Place(other, 0, 1, false)
	if got := e.PlacedConflict(l, 0, 1, false); got < DefaultWeights().Overlap {
		t.Errorf("碰撞冲突至少为 Overlap 权重, got %v", got)
	}
	if got := e.PlacedConflict(other, 0, 1, false); got < DefaultWeights().Overlap {
		t.Errorf("碰撞对双方对称, got %v", got)
	}
}

func TestEvaluator_TeacherGapPenalty(t *testing.T) {
	e, g, _ := newEvaluator()
	l := newLesson()

	// 教师第1节有课，候选第3节会制造1节空档
	g.Place(l, 0, 1, false)
	l2 := &model.Lesson{
		ID:         uuid.New(),
		SubjectIDs: []uuid.UUID{uuid.New()},
		TeacherIDs: []uuid.UUID{l.TeacherIDs[0]},
		ClassIDs:   []uuid.UUID{uuid.New()},
	}

	gapPenalty := e.Penalty(l2, 0, 3, false)
	adjacent := e.Penalty(l2, 0, 2, false)
	if gapPenalty <= adjacent {
		t.Errorf("制造空档(%v)应重于相邻放置(%v)", gapPenalty, adjacent)
	}
}
