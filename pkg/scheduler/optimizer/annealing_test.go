package optimizer

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/paike/paike/pkg/errors"
	"github.com/paike/paike/pkg/model"
	"github.com/paike/paike/pkg/scheduler/constraint"
	"github.com/paike/paike/pkg/scheduler/expander"
	"github.com/paike/paike/pkg/scheduler/solver"
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

func feasibleInput() *solver.Input {
	class := &model.Class{ID: uuid.New(), Name: "一年级1班", Grade: 1}
	return &solver.Input{
		Lessons: []*model.Lesson{
			lessonFor("数学", class, 2, 1),
			lessonFor("语文", class, 2, 1),
			lessonFor("英语", class, 3, 0),
		},
		Classes: []*model.Class{class},
		Config:  weekConfig(),
	}
}

func seededConfig(seed int64) *Config {
	cfg := DefaultConfig()
	cfg.Seed = seed
	return cfg
}

func TestAnnealingSolver_Feasible(t *testing.T) {
	in := feasibleInput()
	s := NewAnnealingSolver(seededConfig(42))

	result, err := s.Solve(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, result.Success, "容量充足时应修复到零冲突")
	assert.Equal(t, 0, result.Stats.ConflictsRemaining)
	assert.Empty(t, result.FailedLessons)

	wantSlots := 0
	for _, l := range in.Lessons {
		wantSlots += l.TotalPeriods()
	}
	assert.Len(t, result.Slots, wantSlots, "随机策略强制放置全部课块")
}

func TestAnnealingSolver_SameSeedSameResult(t *testing.T) {
	in := feasibleInput()

	a, err := NewAnnealingSolver(seededConfig(7)).Solve(context.Background(), in)
	require.NoError(t, err)
	b, err := NewAnnealingSolver(seededConfig(7)).Solve(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, a.Slots, b.Slots, "相同种子必须产生逐位一致的课表")
	assert.Equal(t, a.Stats.ConflictsRemaining, b.Stats.ConflictsRemaining)
}

func TestAnnealingSolver_Overload(t *testing.T) {
	// 一个班每周最多 5×7=35 节，需求 40 节必然残留冲突
	class := &model.Class{ID: uuid.New(), Name: "一年级1班", Grade: 1}
	var lessons []*model.Lesson
	for i := 0; i < 8; i++ {
		lessons = append(lessons, lessonFor("课程", class, 5, 0))
	}
	in := &solver.Input{Lessons: lessons, Classes: []*model.Class{class}, Config: weekConfig()}

	cfg := seededConfig(1)
	cfg.MaxIterations = 2000
	result, err := NewAnnealingSolver(cfg).Solve(context.Background(), in)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Greater(t, result.Stats.ConflictsRemaining, 0)
	require.NotEmpty(t, result.FailedLessons)

	f := result.FailedLessons[0]
	assert.NotEmpty(t, f.FailureReason)
	d := f.DetailedConflicts
	total := d.TeacherBusyCount + d.ClassBusyCount + d.NoDoubleSlotCount + d.DailyLimitCount
	assert.Greater(t, total, 0, "失败诊断应包含结构化受阻计数")
}

func TestAnnealingSolver_ProgressChannel(t *testing.T) {
	// 超载输入保证修复阶段跑满迭代预算，进度快照必然产生
	class := &model.Class{ID: uuid.New(), Name: "一年级1班", Grade: 1}
	var lessons []*model.Lesson
	for i := 0; i < 8; i++ {
		lessons = append(lessons, lessonFor("课程", class, 5, 0))
	}
	in := &solver.Input{Lessons: lessons, Classes: []*model.Class{class}, Config: weekConfig()}

	cfg := seededConfig(3)
	cfg.MaxIterations = 1000
	cfg.ProgressInterval = 100

	ch := make(chan Progress, 64)
	s := NewAnnealingSolver(cfg)
	s.SetProgress(ch)

	_, err := s.Solve(context.Background(), in)
	require.NoError(t, err)
	close(ch)

	received := 0
	last := 0
	for p := range ch {
		received++
		assert.Greater(t, p.Iteration, last, "进度迭代号应单调递增")
		last = p.Iteration
		assert.GreaterOrEqual(t, p.Conflicts, 0)
	}
	assert.Greater(t, received, 0, "修复阶段应至少上报一次进度")
}

func TestAnnealingSolver_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewAnnealingSolver(seededConfig(5)).Solve(ctx, feasibleInput())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeCancelled, apperrors.GetCode(err))
	require.NotNil(t, result, "取消时仍返回贪心阶段的课表")
	assert.NotEmpty(t, result.Slots)
}

func TestAnnealingSolver_Timeout(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Millisecond))
	defer cancel()

	result, err := NewAnnealingSolver(seededConfig(5)).Solve(ctx, feasibleInput())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeTimeout, apperrors.GetCode(err), "超出截止时间应归因为超时而非取消")
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Slots)
}

// conflictedState 超载输入贪心放置后的退火状态，必然残留冲突
func conflictedState(seed int64) *annealState {
	class := &model.Class{ID: uuid.New(), Name: "一年级1班", Grade: 1}
	var lessons []*model.Lesson
	for i := 0; i < 8; i++ {
		lessons = append(lessons, lessonFor("课程", class, 5, 0))
	}
	in := &solver.Input{Lessons: lessons, Classes: []*model.Class{class}, Config: weekConfig()}

	st := newAnnealState(in, constraint.DefaultWeights(), rand.New(rand.NewSource(seed)))
	for _, task := range expander.OrderForGreedy(in.Lessons) {
		p := &placement{task: task}
		st.placeGreedy(p)
		st.placements = append(st.placements, p)
	}
	return st
}

func TestAccept_Criterion(t *testing.T) {
	st := conflictedState(1)

	assert.True(t, st.accept(-0.5, 0), "惩罚下降必须接受，与温度无关")
	assert.False(t, st.accept(1, 0), "零温下不接受任何恶化")
	assert.False(t, st.accept(1e9, 100), "巨额恶化的接受概率趋于零")
	assert.True(t, st.accept(0, 5), "等惩罚移动按 exp(0)=1 的概率接受")
}

func TestTryMove_ZeroTemperatureNeverWorsens(t *testing.T) {
	st := conflictedState(9)

	total, _ := st.totalConflict()
	require.Greater(t, total, 0.0)

	for i := 0; i < 300; i++ {
		prev := total
		st.tryMove(0.7, 0, &total)

		recomputed, _ := st.totalConflict()
		assert.InDelta(t, recomputed, total, 1e-9, "被回退的扰动必须完整恢复网格")
		assert.LessOrEqual(t, total, prev, "零温下被接受的移动只能降低总惩罚")
	}
}

func TestAnnealingSolver_InvalidInput(t *testing.T) {
	in := &solver.Input{Config: weekConfig()}
	_, err := NewAnnealingSolver(nil).Solve(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))
}

func TestShardedSolver_Feasible(t *testing.T) {
	cfg := seededConfig(11)
	cfg.MaxIterations = 2000

	s := NewShardedSolver(cfg, 3)
	result, err := s.Solve(context.Background(), feasibleInput())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 0, result.Stats.ConflictsRemaining)
}

func TestShardedSolver_DefaultShards(t *testing.T) {
	s := NewShardedSolver(nil, 0)
	assert.Equal(t, "ShardedAnnealingSolver", s.Name())
}
