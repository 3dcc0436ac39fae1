// Package solver 提供排课求解器
package solver

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/paike/paike/pkg/logger"
	"github.com/paike/paike/pkg/model"
	"github.com/paike/paike/pkg/scheduler/constraint"
	"github.com/paike/paike/pkg/scheduler/expander"
	"github.com/paike/paike/pkg/scheduler/grid"
	"github.com/paike/paike/pkg/swap"
)

// BacktrackingConfig 回溯求解参数。
// 阈值为经验调参值，可整体覆盖；调整影响解的质量与耗时，不影响正确性。
type BacktrackingConfig struct {
	RelaxAfter         int                `json:"relax_after"`    // 超过该递归次数后放开同日重复约束（单向全局开关）
	MaxRecursions      int                `json:"max_recursions"` // 硬递归上限，达到后停止搜索并返回部分解
	MaxSwapSuggestions int                `json:"max_swap_suggestions"`
	Weights            constraint.Weights `json:"weights"`
}

// DefaultBacktrackingConfig 默认回溯求解参数
func DefaultBacktrackingConfig() *BacktrackingConfig {
	return &BacktrackingConfig{
		RelaxAfter:         30000,
		MaxRecursions:      200000,
		MaxSwapSuggestions: 5,
		Weights:            constraint.DefaultWeights(),
	}
}

// BacktrackingSolver 确定性回溯求解器：
// 深度优先+时序回溯，候选课位按最少约束值（LCV）排序，
// 停滞时放宽同日重复约束以保证最终能给出某种放置。
type BacktrackingSolver struct {
	cfg *BacktrackingConfig
	log *logger.SolverLogger
}

// NewBacktrackingSolver 创建回溯求解器
func NewBacktrackingSolver(cfg *BacktrackingConfig) *BacktrackingSolver {
	if cfg == nil {
		cfg = DefaultBacktrackingConfig()
	}
	return &BacktrackingSolver{
		cfg: cfg,
		log: logger.NewSolverLogger("backtracking"),
	}
}

// Name 返回求解器名称
func (s *BacktrackingSolver) Name() string {
	return "BacktrackingSolver"
}

// placedEntry 已放置任务的记录，用于撤销与配额核对
type placedEntry struct {
	task   *expander.Task
	day    int
	period int
}

// searchState 一次求解的全部可变状态。
// 放宽开关与递归计数挂在状态对象上而非包级变量，
// 同一进程内可并发运行多次独立求解。
type searchState struct {
	ctx  context.Context
	grid *grid.Grid
	eval *constraint.Evaluator
	cfg  *model.ScheduleConfig
	log  *logger.SolverLogger

	relaxAfter int
	budget     int

	relaxed    bool
	recursions int
	stopped    bool
	cancelled  bool

	placed   []placedEntry
	recorder *FailureRecorder
}

// candidate 候选课位及其LCV得分
type candidate struct {
	day    int
	period int
	score  int
}

// candidates 计算任务的全部可行课位，同时归因每个被阻塞的尝试
func (st *searchState) candidates(t *expander.Task) ([]candidate, *LessonFailure) {
	l := t.Lesson
	tally := &LessonFailure{
		Lesson:    l,
		ByTeacher: make(map[uuid.UUID]int),
		ByClass:   make(map[uuid.UUID]int),
		ByDay:     make(map[int]int),
	}

	var cands []candidate
	for day := 0; day < st.grid.Days(); day++ {
		if !st.eval.CanPlaceOnDay(l, day, st.relaxed) {
			tally.DailyLimit++
			tally.ByDay[day]++
			continue
		}
		freeOnDay := 0
		for period := 1; period <= st.grid.Periods(); period++ {
			if t.IsDouble && !st.eval.IsValidDoubleStart(period) {
				continue
			}
			if st.blockFree(l, day, period, t.IsDouble, tally) {
				cands = append(cands, candidate{day: day, period: period})
				freeOnDay++
			}
		}
		if t.IsDouble && freeOnDay == 0 {
			tally.NoDoubleSlot++
			tally.ByDay[day]++
		}
	}
	return cands, tally
}

// blockFree 检查课块所需的全部节次是否空闲，受阻时归因到占用实体
func (st *searchState) blockFree(l *model.Lesson, day, period int, isDouble bool, tally *LessonFailure) bool {
	periods := []int{period}
	if isDouble {
		periods = append(periods, period+1)
	}
	free := true
	for _, p := range periods {
		for _, teacherID := range l.TeacherIDs {
			if !st.grid.IsFree(teacherID, day, p) {
				tally.TeacherBusy++
				tally.ByTeacher[teacherID]++
				tally.ByDay[day]++
				free = false
			}
		}
		for _, classID := range l.ClassIDs {
			if !st.grid.IsFree(classID, day, p) {
				tally.ClassBusy++
				tally.ByClass[classID]++
				tally.ByDay[day]++
				free = false
			}
		}
	}
	return free
}

// lcvScore 最少约束值启发：试放该课位后，统计本课程的教师与班级
// 在其余各天还剩多少空闲节次。剩余越多，该课位对后续的约束越少。
func (st *searchState) lcvScore(t *expander.Task, day, period int) int {
	st.grid.Place(t.Lesson, day, period, t.IsDouble)
	score := 0
	for d := 0; d < st.grid.Days(); d++ {
		if d == day {
			continue
		}
		for p := 1; p <= st.grid.Periods(); p++ {
			for _, teacherID := range t.Lesson.TeacherIDs {
				if st.grid.IsFree(teacherID, d, p) {
					score++
				}
			}
			for _, classID := range t.Lesson.ClassIDs {
				if st.grid.IsFree(classID, d, p) {
					score++
				}
			}
		}
	}
	st.grid.Remove(t.Lesson, day, period, t.IsDouble)
	return score
}

// solve 对 tasks[i:] 做深度优先回溯。
// 返回真表示全部放置成功；预算耗尽时置 stopped 并保留当前局面。
func (st *searchState) solve(tasks []*expander.Task, i int) bool {
	if i == len(tasks) {
		return true
	}
	if st.ctx != nil && st.ctx.Err() != nil {
		st.stopped = true
		st.cancelled = true
		return false
	}

	st.recursions++
	if st.recursions > st.budget {
		st.stopped = true
		return false
	}
	if !st.relaxed && st.recursions > st.relaxAfter {
		st.relaxed = true
		st.log.RelaxationTriggered(st.recursions)
	}

	task := tasks[i]
	cands, tally := st.candidates(task)
	if len(cands) == 0 {
		st.recorder.For(task.Lesson).Merge(tally)
		return false
	}

	for idx := range cands {
		cands[idx].score = st.lcvScore(task, cands[idx].day, cands[idx].period)
	}
	// 稳定排序：并列得分保持扫描序，输入确定则输出确定
	sort.SliceStable(cands, func(a, b int) bool { return cands[a].score > cands[b].score })

	for _, c := range cands {
		st.grid.Place(task.Lesson, c.day, c.period, task.IsDouble)
		st.placed = append(st.placed, placedEntry{task: task, day: c.day, period: c.period})

		if st.solve(tasks, i+1) {
			return true
		}
		if st.stopped {
			// 预算耗尽：不再撤销，保留部分解
			return false
		}

		st.placed = st.placed[:len(st.placed)-1]
		st.grid.Remove(task.Lesson, c.day, c.period, task.IsDouble)
	}

	st.recorder.For(task.Lesson).Merge(tally)
	return false
}

// fillRemaining 搜索失败或预算耗尽后，对尚未放置的任务做一轮
// 可行性贪心补排，让部分解尽可能有用
func (st *searchState) fillRemaining(tasks []*expander.Task) {
	placedSet := make(map[uuid.UUID]bool, len(st.placed))
	for _, e := range st.placed {
		placedSet[e.task.ID] = true
	}

	for _, t := range tasks {
		if placedSet[t.ID] {
			continue
		}
		cands, tally := st.candidates(t)
		if len(cands) == 0 {
			st.recorder.For(t.Lesson).Merge(tally)
			continue
		}
		c := cands[0]
		st.grid.Place(t.Lesson, c.day, c.period, t.IsDouble)
		st.placed = append(st.placed, placedEntry{task: t, day: c.day, period: c.period})
	}
}

// Solve 执行回溯求解
func (s *BacktrackingSolver) Solve(ctx context.Context, in *Input) (*model.ScheduleResult, error) {
	start := time.Now()

	if err := in.Validate(); err != nil {
		return nil, err
	}

	tasks := expander.OrderForBacktracking(in.Lessons)
	g := grid.New(in.Config.Days(), in.Config.NumberOfPeriods)
	st := &searchState{
		ctx:        ctx,
		grid:       g,
		eval:       constraint.New(g, in.Config, s.cfg.Weights),
		cfg:        in.Config,
		log:        s.log,
		relaxAfter: s.cfg.RelaxAfter,
		budget:     s.cfg.MaxRecursions,
		recorder:   NewFailureRecorder(),
	}

	s.log.StartSolve(len(in.Lessons), len(tasks), in.Config.Days(), in.Config.NumberOfPeriods)

	solved := st.solve(tasks, 0)
	if !solved && !st.cancelled {
		if st.stopped {
			s.log.BudgetExhausted(st.recursions, len(st.placed), len(tasks))
		}
		st.fillRemaining(tasks)
	}

	result := s.buildResult(in, st, solved)
	s.log.SolveComplete(time.Since(start), result.Success, result.Stats.ConflictsRemaining)

	if st.cancelled {
		return result, InterruptError(ctx, "回溯求解在迭代边界被中断")
	}
	return result, nil
}

// buildResult 汇总网格状态、失败诊断与换位建议
func (s *BacktrackingSolver) buildResult(in *Input, st *searchState, solved bool) *model.ScheduleResult {
	slots := Materialize(st.grid, in.Classes, s.log)

	placedSingles := make(map[uuid.UUID]int)
	placedDoubles := make(map[uuid.UUID]int)
	for _, e := range st.placed {
		if e.task.IsDouble {
			placedDoubles[e.task.Lesson.ID]++
		} else {
			placedSingles[e.task.Lesson.ID]++
		}
	}

	suggester := swap.NewSuggester(st.grid, st.eval, in.Config, lessonByID(in.Lessons))

	var failed []model.FailedLesson
	scheduled := 0
	for _, l := range in.Lessons {
		missingSingles := l.NumberOfSingles - placedSingles[l.ID]
		missingDoubles := l.NumberOfDoubles - placedDoubles[l.ID]
		if missingSingles <= 0 && missingDoubles <= 0 {
			scheduled++
			continue
		}

		f := st.recorder.For(l)
		missing := missingSingles + 2*missingDoubles
		failed = append(failed, model.FailedLesson{
			LessonID:          l.ID,
			LessonName:        l.Name,
			RequiredPeriods:   l.TotalPeriods(),
			FailureReason:     f.Reason(missing, in.Config.DaysOfWeek),
			DetailedConflicts: f.Detailed(),
			SuggestedSwaps:    suggester.SuggestFor(l, missingDoubles > 0, s.cfg.MaxSwapSuggestions),
		})
	}

	return &model.ScheduleResult{
		Success:       solved,
		Slots:         slots,
		FailedLessons: failed,
		Stats: model.Stats{
			TotalSlots:             len(slots),
			ScheduledLessons:       scheduled,
			FailedLessonsCount:     len(failed),
			IterationsOrRecursions: st.recursions,
			// 回溯策略从不放置冲突课位
			ConflictsRemaining: 0,
		},
	}
}
