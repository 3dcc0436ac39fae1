package solver

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/paike/paike/pkg/errors"
	"github.com/paike/paike/pkg/model"
)

func weekConfig() *model.ScheduleConfig {
	return &model.ScheduleConfig{
		DaysOfWeek:      []string{"周一", "周二", "周三", "周四", "周五"},
		NumberOfPeriods: 7,
		IntervalSlots:   []model.IntervalSlot{{AfterPeriod: 4}},
	}
}

func lessonFor(name string, class *model.Class, singles, doubles int) *model.Lesson {
	return &model.Lesson{
		ID:              uuid.New(),
		Name:            name,
		SubjectIDs:      []uuid.UUID{uuid.New()},
		TeacherIDs:      []uuid.UUID{uuid.New()},
		ClassIDs:        []uuid.UUID{class.ID},
		NumberOfSingles: singles,
		NumberOfDoubles: doubles,
	}
}

func feasibleInput() *Input {
	class := &model.Class{ID: uuid.New(), Name: "一年级1班", Grade: 1}
	return &Input{
		Lessons: []*model.Lesson{
			lessonFor("数学", class, 2, 1),
			lessonFor("语文", class, 2, 1),
			lessonFor("英语", class, 3, 0),
		},
		Classes: []*model.Class{class},
		Config:  weekConfig(),
	}
}

// checkWellFormed 校验输出课表的结构完整性：
// 无重复课位、连堂首尾成对且不跨大休、同课同班每日不超过一次
func checkWellFormed(t *testing.T, in *Input, slots []model.SlotRecord) {
	t.Helper()

	type key struct {
		class  uuid.UUID
		day    int
		period int
	}
	byKey := make(map[key]model.SlotRecord, len(slots))
	for _, s := range slots {
		k := key{s.ClassID, s.Day, s.PeriodNumber}
		if _, dup := byKey[k]; dup {
			t.Errorf("课位重复: 班级 %s 第%d天第%d节", s.ClassID, s.Day, s.PeriodNumber)
		}
		byKey[k] = s
	}

	daily := make(map[uuid.UUID]map[key]bool)
	for _, s := range slots {
		if s.IsDoubleStart {
			next, ok := byKey[key{s.ClassID, s.Day, s.PeriodNumber + 1}]
			require.True(t, ok, "连堂首节缺少次节")
			assert.Equal(t, s.LessonID, next.LessonID, "连堂首尾课程不一致")
			assert.True(t, next.IsDoubleEnd, "连堂次节角色错误")
			assert.False(t, in.Config.IsInterval(s.PeriodNumber), "连堂不得跨越课间大休")
		}
		if s.IsDoubleEnd {
			continue // 按首节计入每日出现次数
		}
		if daily[s.LessonID] == nil {
			daily[s.LessonID] = make(map[key]bool)
		}
		k := key{s.ClassID, s.Day, 0}
		if daily[s.LessonID][k] {
			t.Errorf("课程 %s 同日出现多次", s.LessonID)
		}
		daily[s.LessonID][k] = true
	}
}

func TestBacktrackingSolver_Feasible(t *testing.T) {
	in := feasibleInput()
	s := NewBacktrackingSolver(nil)

	result, err := s.Solve(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Success, "容量充足时应得到完整解")
	assert.Empty(t, result.FailedLessons)

	wantSlots := 0
	for _, l := range in.Lessons {
		wantSlots += l.TotalPeriods()
	}
	assert.Equal(t, wantSlots, result.Stats.TotalSlots)
	assert.Len(t, result.Slots, wantSlots)
	assert.Equal(t, len(in.Lessons), result.Stats.ScheduledLessons)
	assert.Equal(t, 0, result.Stats.ConflictsRemaining)

	checkWellFormed(t, in, result.Slots)
}

func TestBacktrackingSolver_Deterministic(t *testing.T) {
	in := feasibleInput()

	a, err := NewBacktrackingSolver(nil).Solve(context.Background(), in)
	require.NoError(t, err)
	b, err := NewBacktrackingSolver(nil).Solve(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, a.Slots, b.Slots, "相同输入必须产生逐位一致的课表")
	assert.Equal(t, a.Stats, b.Stats)
}

func TestBacktrackingSolver_Overload(t *testing.T) {
	class := &model.Class{ID: uuid.New(), Name: "一年级1班", Grade: 1}
	in := &Input{
		Lessons: []*model.Lesson{lessonFor("数学", class, 6, 0)},
		Classes: []*model.Class{class},
		Config: &model.ScheduleConfig{
			DaysOfWeek:      []string{"周一"},
			NumberOfPeriods: 4,
		},
	}

	result, err := NewBacktrackingSolver(nil).Solve(context.Background(), in)
	require.NoError(t, err)

	assert.False(t, result.Success)
	require.Len(t, result.FailedLessons, 1)

	f := result.FailedLessons[0]
	assert.Equal(t, in.Lessons[0].ID, f.LessonID)
	assert.Equal(t, 6, f.RequiredPeriods)
	assert.NotEmpty(t, f.FailureReason, "失败课程必须带可读原因")
	assert.LessOrEqual(t, len(result.Slots), 4, "课位数不得超过网格容量")
}

func TestBacktrackingSolver_RelaxationFillsCapacity(t *testing.T) {
	// 需求超出容量：放宽同日重复约束后仍应把网格填满
	class := &model.Class{ID: uuid.New(), Name: "一年级1班", Grade: 1}
	in := &Input{
		Lessons: []*model.Lesson{lessonFor("数学", class, 6, 0)},
		Classes: []*model.Class{class},
		Config: &model.ScheduleConfig{
			DaysOfWeek:      []string{"周一"},
			NumberOfPeriods: 4,
		},
	}

	cfg := DefaultBacktrackingConfig()
	cfg.RelaxAfter = 1

	result, err := NewBacktrackingSolver(cfg).Solve(context.Background(), in)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Len(t, result.Slots, 4, "放宽后应填满全部 4 个课位")
	require.Len(t, result.FailedLessons, 1)
	assert.NotEmpty(t, result.FailedLessons[0].FailureReason)
}

func TestBacktrackingSolver_BudgetExhausted(t *testing.T) {
	in := feasibleInput()
	cfg := DefaultBacktrackingConfig()
	cfg.MaxRecursions = 1

	result, err := NewBacktrackingSolver(cfg).Solve(context.Background(), in)
	require.NoError(t, err)

	// 预算耗尽：保留部分解并贪心补排，不报告为完整解
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Slots, "补排后应保留可用的部分课表")
	assert.Greater(t, result.Stats.IterationsOrRecursions, cfg.MaxRecursions)
	checkWellFormed(t, in, result.Slots)
}

func TestBacktrackingSolver_OneSinglePerDay(t *testing.T) {
	// 5 个单节恰好铺满 5 天，每天一节
	class := &model.Class{ID: uuid.New(), Name: "一年级1班", Grade: 1}
	in := &Input{
		Lessons: []*model.Lesson{lessonFor("数学", class, 5, 0)},
		Classes: []*model.Class{class},
		Config: &model.ScheduleConfig{
			DaysOfWeek:      []string{"周一", "周二", "周三", "周四", "周五"},
			NumberOfPeriods: 7,
		},
	}

	result, err := NewBacktrackingSolver(nil).Solve(context.Background(), in)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.Slots, 5)

	days := make(map[int]bool)
	for _, s := range result.Slots {
		days[s.Day] = true
	}
	assert.Len(t, days, 5, "每日一次约束下 5 个单节必须分布在 5 天")
}

func TestBacktrackingSolver_SharedTeacher(t *testing.T) {
	classA := &model.Class{ID: uuid.New(), Name: "一年级1班", Grade: 1}
	classB := &model.Class{ID: uuid.New(), Name: "一年级2班", Grade: 1}
	teacher := uuid.New()
	l1 := lessonFor("数学A", classA, 5, 0)
	l1.TeacherIDs = []uuid.UUID{teacher}
	l2 := lessonFor("数学B", classB, 5, 0)
	l2.TeacherIDs = []uuid.UUID{teacher}

	in := &Input{
		Lessons: []*model.Lesson{l1, l2},
		Classes: []*model.Class{classA, classB},
		Config: &model.ScheduleConfig{
			DaysOfWeek:      []string{"周一", "周二", "周三", "周四", "周五"},
			NumberOfPeriods: 7,
		},
	}

	result, err := NewBacktrackingSolver(nil).Solve(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, result.Success, "35 个教师课位容纳 10 节需求应完整可排")
	assert.Empty(t, result.FailedLessons)
	checkWellFormed(t, in, result.Slots)

	// 共享教师在任何课位只出现一次
	type slotKey struct{ day, period int }
	teacherSlots := make(map[slotKey]int)
	for _, s := range result.Slots {
		teacherSlots[slotKey{s.Day, s.PeriodNumber}]++
	}
	for key, n := range teacherSlots {
		if n > 1 {
			t.Errorf("教师在第%d天第%d节被双重占用", key.day, key.period)
		}
	}
}

func TestBacktrackingSolver_LastDoubleStart(t *testing.T) {
	// 同班两门连堂课竞争单日仅有的一个连堂起点
	class := &model.Class{ID: uuid.New(), Name: "一年级1班", Grade: 1}
	in := &Input{
		Lessons: []*model.Lesson{
			lessonFor("数学", class, 0, 1),
			lessonFor("语文", class, 0, 1),
		},
		Classes: []*model.Class{class},
		Config: &model.ScheduleConfig{
			DaysOfWeek:      []string{"周一"},
			NumberOfPeriods: 2,
		},
	}

	result, err := NewBacktrackingSolver(nil).Solve(context.Background(), in)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Len(t, result.Slots, 2, "仅有的连堂位恰好容纳一门课")
	require.Len(t, result.FailedLessons, 1)
	assert.Greater(t, result.FailedLessons[0].DetailedConflicts.NoDoubleSlotCount, 0,
		"失败诊断应归因到连堂位不足")
}

func TestBacktrackingSolver_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewBacktrackingSolver(nil).Solve(ctx, feasibleInput())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeCancelled, apperrors.GetCode(err))
	require.NotNil(t, result, "取消时仍返回已完成部分")
}

func TestBacktrackingSolver_Timeout(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Millisecond))
	defer cancel()

	result, err := NewBacktrackingSolver(nil).Solve(ctx, feasibleInput())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeTimeout, apperrors.GetCode(err), "超出截止时间应归因为超时而非取消")
	require.NotNil(t, result)
	assert.False(t, result.Success)
}

func TestBacktrackingSolver_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		in   *Input
	}{
		{"缺少网格参数", &Input{Lessons: feasibleInput().Lessons, Classes: feasibleInput().Classes}},
		{"课程列表为空", &Input{Classes: feasibleInput().Classes, Config: weekConfig()}},
		{"班级列表为空", &Input{Lessons: feasibleInput().Lessons, Config: weekConfig()}},
	}

	s := NewBacktrackingSolver(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Solve(context.Background(), tt.in)
			require.Error(t, err)
			assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))
		})
	}
}
