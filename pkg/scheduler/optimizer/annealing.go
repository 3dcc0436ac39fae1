// Package optimizer 实现随机局部搜索排课策略：
// 贪心构造一张完整课表（允许冲突），再以模拟退火接受准则
// 迭代修复，停滞时重加热或战略性重洗。
package optimizer

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/paike/paike/pkg/logger"
	"github.com/paike/paike/pkg/model"
	"github.com/paike/paike/pkg/scheduler/constraint"
	"github.com/paike/paike/pkg/scheduler/expander"
	"github.com/paike/paike/pkg/scheduler/grid"
	"github.com/paike/paike/pkg/scheduler/solver"
)

// Config 随机策略参数。默认值为经验调参结果，可按需覆盖。
type Config struct {
	MaxIterations    int                // 修复阶段最大迭代数
	InitialTemp      float64            // 初始温度
	CoolingRate      float64            // 每次迭代的线性降温量
	MinTemp          float64            // 温度下限
	ReheatTemp       float64            // 重加热目标温度
	ReheatAfter      int                // 连续无改进多少次后重加热
	ShuffleAfter     int                // 距上次刷新最优多少次后战略性重洗
	RandomMoveProb   float64            // 随机迁移（相对两两换位）的比例
	ProgressInterval int                // 进度上报间隔
	Seed             int64              // 随机种子，0 表示按时间播种
	Weights          constraint.Weights // 惩罚权重
}

// DefaultConfig 返回默认随机策略参数
func DefaultConfig() *Config {
	return &Config{
		MaxIterations:    30000,
		InitialTemp:      100.0,
		CoolingRate:      0.01,
		MinTemp:          0.1,
		ReheatTemp:       150.0,
		ReheatAfter:      500,
		ShuffleAfter:     3000,
		RandomMoveProb:   0.7,
		ProgressInterval: 200,
		Seed:             0,
		Weights:          constraint.DefaultWeights(),
	}
}

// Progress 搜索进度快照，经由可选通道上报给调用方
type Progress struct {
	Iteration   int     `json:"iteration"`
	Conflicts   int     `json:"conflicts"`
	Temperature float64 `json:"temperature"`
}

// AnnealingSolver 模拟退火求解器。贪心构造阶段从不失败：
// 每个课块都被强制放入当前惩罚最小的课位；剩余冲突由修复阶段消解。
type AnnealingSolver struct {
	cfg      *Config
	log      *logger.SolverLogger
	progress chan<- Progress
}

// NewAnnealingSolver 创建随机策略求解器
func NewAnnealingSolver(cfg *Config) *AnnealingSolver {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &AnnealingSolver{
		cfg: cfg,
		log: logger.NewSolverLogger("annealing"),
	}
}

// Name 返回策略名称
func (s *AnnealingSolver) Name() string {
	return "AnnealingSolver"
}

// SetProgress 设置进度上报通道。上报为非阻塞发送，
// 消费方落后时丢弃快照而不是拖慢搜索循环。
func (s *AnnealingSolver) SetProgress(ch chan<- Progress) {
	s.progress = ch
}

// placement 一个已放置课块及其当前位置
type placement struct {
	task   *expander.Task
	day    int
	period int
}

type position struct {
	day    int
	period int
}

// annealState 单次求解的全部可变状态
type annealState struct {
	grid         *grid.Grid
	eval         *constraint.Evaluator
	cfg          *model.ScheduleConfig
	rng          *rand.Rand
	placements   []*placement
	singleStarts []int
	doubleStarts []int
}

func newAnnealState(in *solver.Input, weights constraint.Weights, rng *rand.Rand) *annealState {
	g := grid.New(in.Config.Days(), in.Config.NumberOfPeriods)
	singles := make([]int, 0, in.Config.NumberOfPeriods)
	for p := 1; p <= in.Config.NumberOfPeriods; p++ {
		singles = append(singles, p)
	}
	return &annealState{
		grid:         g,
		eval:         constraint.New(g, in.Config, weights),
		cfg:          in.Config,
		rng:          rng,
		singleStarts: singles,
		doubleStarts: in.Config.ValidDoubleStarts(),
	}
}

func (st *annealState) starts(isDouble bool) []int {
	if isDouble {
		return st.doubleStarts
	}
	return st.singleStarts
}

// placeGreedy 强制放置：在全部候选课位中取惩罚最小者。
// 优先只考察该课程当天尚未出现的天，全部被占时退化为所有天。
func (st *annealState) placeGreedy(p *placement) {
	l := p.task.Lesson
	starts := st.starts(p.task.IsDouble)
	bestDay := -1
	bestPeriod := 0
	bestPenalty := math.MaxFloat64
	for pass := 0; pass < 2 && bestDay < 0; pass++ {
		for day := 0; day < st.grid.Days(); day++ {
			if pass == 0 && !st.eval.CanPlaceOnDay(l, day, false) {
				continue
			}
			for _, period := range starts {
				pen := st.eval.Penalty(l, day, period, p.task.IsDouble)
				if pen < bestPenalty {
					bestPenalty = pen
					bestDay = day
					bestPeriod = period
				}
			}
		}
	}
	st.grid.Place(l, bestDay, bestPeriod, p.task.IsDouble)
	p.day = bestDay
	p.period = bestPeriod
}

func (st *annealState) remove(p *placement) {
	st.grid.Remove(p.task.Lesson, p.day, p.period, p.task.IsDouble)
}

func (st *annealState) apply(p *placement, day, period int) {
	st.grid.Place(p.task.Lesson, day, period, p.task.IsDouble)
	p.day = day
	p.period = period
}

// conflict 课块当前位置上的硬冲突惩罚
func (st *annealState) conflict(p *placement) float64 {
	return st.eval.PlacedConflict(p.task.Lesson, p.day, p.period, p.task.IsDouble)
}

// totalConflict 全表硬冲突惩罚之和与冲突课块数
func (st *annealState) totalConflict() (float64, int) {
	var total float64
	count := 0
	for _, p := range st.placements {
		c := st.conflict(p)
		if c > 0 {
			count++
		}
		total += c
	}
	return total, count
}

func (st *annealState) conflictedPlacements() []*placement {
	var out []*placement
	for _, p := range st.placements {
		if st.conflict(p) > 0 {
			out = append(out, p)
		}
	}
	return out
}

func (st *annealState) randomSlot(isDouble bool) (int, int) {
	starts := st.starts(isDouble)
	return st.rng.Intn(st.grid.Days()), starts[st.rng.Intn(len(starts))]
}

func (st *annealState) snapshot() []position {
	out := make([]position, len(st.placements))
	for i, p := range st.placements {
		out[i] = position{day: p.day, period: p.period}
	}
	return out
}

// restore 把课表恢复到某次快照的布局
func (st *annealState) restore(pos []position) {
	for _, p := range st.placements {
		st.remove(p)
	}
	for i, p := range st.placements {
		st.apply(p, pos[i].day, pos[i].period)
	}
}

// accept 退火接受准则：惩罚下降必然接受，否则以 exp(-Δ/T) 概率接受
func (st *annealState) accept(delta, temperature float64) bool {
	if delta < 0 {
		return true
	}
	if temperature <= 0 {
		return false
	}
	return st.rng.Float64() < math.Exp(-delta/temperature)
}

// tryMove 对一个随机冲突课块施加一次扰动，按退火准则决定保留或回退。
// 扰动为随机迁移或与另一课块两两换位，比例由 RandomMoveProb 控制。
func (st *annealState) tryMove(randomMoveProb, temperature float64, total *float64) bool {
	conflicted := st.conflictedPlacements()
	if len(conflicted) == 0 {
		return false
	}
	p := conflicted[st.rng.Intn(len(conflicted))]

	if st.rng.Float64() < randomMoveProb || len(st.placements) < 2 {
		oldDay, oldPeriod := p.day, p.period
		day, period := st.randomSlot(p.task.IsDouble)
		if day == oldDay && period == oldPeriod {
			return false
		}
		st.remove(p)
		st.apply(p, day, period)
		newTotal, _ := st.totalConflict()
		if st.accept(newTotal-*total, temperature) {
			*total = newTotal
			return true
		}
		st.remove(p)
		st.apply(p, oldDay, oldPeriod)
		return false
	}

	other := st.placements[st.rng.Intn(len(st.placements))]
	if other == p {
		return false
	}
	// 换位后双方起点都必须对各自的课块类型合法
	if p.task.IsDouble && !st.eval.IsValidDoubleStart(other.period) {
		return false
	}
	if other.task.IsDouble && !st.eval.IsValidDoubleStart(p.period) {
		return false
	}
	pDay, pPeriod := p.day, p.period
	oDay, oPeriod := other.day, other.period
	st.remove(p)
	st.remove(other)
	st.apply(p, oDay, oPeriod)
	st.apply(other, pDay, pPeriod)
	newTotal, _ := st.totalConflict()
	if st.accept(newTotal-*total, temperature) {
		*total = newTotal
		return true
	}
	st.remove(p)
	st.remove(other)
	st.apply(p, pDay, pPeriod)
	st.apply(other, oDay, oPeriod)
	return false
}

// strategicShuffle 战略性重洗：移出全部冲突课块与软惩罚最差的
// 一半零冲突课块，随机打乱后逐个重新贪心放置
func (st *annealState) strategicShuffle() int {
	var conflicted []*placement
	type scored struct {
		p       *placement
		penalty float64
	}
	var clean []scored
	for _, p := range st.placements {
		if st.conflict(p) > 0 {
			conflicted = append(conflicted, p)
			continue
		}
		clean = append(clean, scored{p: p, penalty: st.eval.PlacedPenalty(p.task.Lesson, p.day, p.period, p.task.IsDouble)})
	}
	sort.SliceStable(clean, func(i, j int) bool {
		return clean[i].penalty > clean[j].penalty
	})
	victims := conflicted
	for _, s := range clean[:len(clean)/2] {
		victims = append(victims, s.p)
	}
	for _, p := range victims {
		st.remove(p)
	}
	st.rng.Shuffle(len(victims), func(i, j int) {
		victims[i], victims[j] = victims[j], victims[i]
	})
	for _, p := range victims {
		st.placeGreedy(p)
	}
	return len(victims)
}

// Solve 执行贪心构造与退火修复，返回当前最优课表。
// 冲突未清零时 Success 为 false，冲突明细保留在结果中。
func (s *AnnealingSolver) Solve(ctx context.Context, in *solver.Input) (*model.ScheduleResult, error) {
	start := time.Now()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	seed := s.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	st := newAnnealState(in, s.cfg.Weights, rng)

	tasks := expander.OrderForGreedy(in.Lessons)
	s.log.StartSolve(len(in.Lessons), len(tasks), st.grid.Days(), in.Config.NumberOfPeriods)

	// 第一阶段：贪心构造，每个课块都被放置
	for _, t := range tasks {
		p := &placement{task: t}
		st.placeGreedy(p)
		st.placements = append(st.placements, p)
	}

	// 第二阶段：退火修复
	temperature := s.cfg.InitialTemp
	total, _ := st.totalConflict()
	best := st.snapshot()
	bestTotal := total
	noImprove := 0
	sinceBest := 0
	iterations := 0
	cancelled := false

	for iter := 1; iter <= s.cfg.MaxIterations; iter++ {
		iterations = iter
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if total == 0 {
			break
		}

		st.tryMove(s.cfg.RandomMoveProb, temperature, &total)

		if total < bestTotal {
			bestTotal = total
			best = st.snapshot()
			noImprove = 0
			sinceBest = 0
		} else {
			noImprove++
			sinceBest++
		}

		if noImprove >= s.cfg.ReheatAfter {
			temperature = s.cfg.ReheatTemp
			noImprove = 0
			s.log.Reheat(iter, temperature)
		}
		if sinceBest >= s.cfg.ShuffleAfter {
			moved := st.strategicShuffle()
			s.log.Shuffle(iter, moved)
			total, _ = st.totalConflict()
			temperature = s.cfg.InitialTemp
			sinceBest = 0
			if total < bestTotal {
				bestTotal = total
				best = st.snapshot()
			}
		}

		temperature -= s.cfg.CoolingRate
		if temperature < s.cfg.MinTemp {
			temperature = s.cfg.MinTemp
		}

		if s.cfg.ProgressInterval > 0 && iter%s.cfg.ProgressInterval == 0 {
			_, conflictCount := st.totalConflict()
			s.emit(Progress{Iteration: iter, Conflicts: conflictCount, Temperature: temperature})
			s.log.Progress(iter, conflictCount, temperature)
		}
	}

	// 无论如何停止，都回到历史最优布局
	st.restore(best)
	_, conflictCount := st.totalConflict()

	result := s.buildResult(in, st, iterations, conflictCount)
	s.log.SolveComplete(time.Since(start), result.Success, conflictCount)
	if cancelled {
		result.Success = false
		return result, solver.InterruptError(ctx, "退火求解在迭代边界被中断")
	}
	return result, nil
}

func (s *AnnealingSolver) emit(p Progress) {
	if s.progress == nil {
		return
	}
	select {
	case s.progress <- p:
	default:
	}
}

func (s *AnnealingSolver) buildResult(in *solver.Input, st *annealState, iterations, conflictCount int) *model.ScheduleResult {
	slots := solver.Materialize(st.grid, in.Classes, s.log)
	recorder := solver.NewFailureRecorder()
	perLesson := make(map[uuid.UUID]int)
	for _, p := range st.placements {
		if st.conflict(p) == 0 {
			continue
		}
		perLesson[p.task.Lesson.ID]++
		st.attribute(p, recorder.For(p.task.Lesson))
	}

	var failed []model.FailedLesson
	scheduled := 0
	for _, l := range in.Lessons {
		n, ok := perLesson[l.ID]
		if !ok {
			scheduled++
			continue
		}
		f := recorder.For(l)
		failed = append(failed, model.FailedLesson{
			LessonID:          l.ID,
			LessonName:        l.Name,
			RequiredPeriods:   l.TotalPeriods(),
			FailureReason:     fmt.Sprintf("课程「%s」已全部放入课表，但仍有 %d 个课块存在冲突", l.Name, n),
			DetailedConflicts: f.Detailed(),
		})
	}

	return &model.ScheduleResult{
		Success:       conflictCount == 0,
		Slots:         slots,
		FailedLessons: failed,
		Stats: model.Stats{
			TotalSlots:             len(slots),
			ScheduledLessons:       scheduled,
			FailedLessonsCount:     len(failed),
			IterationsOrRecursions: iterations,
			ConflictsRemaining:     conflictCount,
		},
	}
}

// attribute 把一个冲突课块的硬冲突归因到具体教师、班级与天
func (st *annealState) attribute(p *placement, f *solver.LessonFailure) {
	l := p.task.Lesson
	periods := []int{p.period}
	if p.task.IsDouble {
		periods = append(periods, p.period+1)
	}
	for _, per := range periods {
		for _, teacherID := range l.TeacherIDs {
			if extra := len(st.grid.Occupants(teacherID, p.day, per)) - 1; extra > 0 {
				f.TeacherBusy += extra
				f.ByTeacher[teacherID] += extra
				f.ByDay[p.day] += extra
			}
		}
		for _, classID := range l.ClassIDs {
			if extra := len(st.grid.Occupants(classID, p.day, per)) - 1; extra > 0 {
				f.ClassBusy += extra
				f.ByClass[classID] += extra
				f.ByDay[p.day] += extra
			}
		}
	}
	if p.task.IsDouble && !st.eval.IsValidDoubleStart(p.period) {
		f.NoDoubleSlot++
	}
	for _, classID := range l.ClassIDs {
		if st.grid.DailyCount(classID, p.day, l.ID) > 1 {
			f.DailyLimit++
		}
	}
}
