package optimizer

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/paike/paike/pkg/logger"
	"github.com/paike/paike/pkg/model"
	"github.com/paike/paike/pkg/scheduler/solver"
)

// ShardedSolver 并行分片求解器：N 个工作器以互不相同的随机种子
// 独立运行完整的退火搜索（问题是天然可并行的），协调器取
// 剩余冲突数最小的结果。种子固定时整体结果可复现。
type ShardedSolver struct {
	cfg      *Config
	shards   int
	log      *logger.SolverLogger
	progress chan<- Progress
}

// NewShardedSolver 创建并行分片求解器。shards 不大于零时
// 取可用 CPU 数。
func NewShardedSolver(cfg *Config, shards int) *ShardedSolver {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if shards <= 0 {
		shards = runtime.NumCPU()
	}
	return &ShardedSolver{
		cfg:    cfg,
		shards: shards,
		log:    logger.NewSolverLogger("sharded-annealing"),
	}
}

// Name 返回策略名称
func (s *ShardedSolver) Name() string {
	return "ShardedAnnealingSolver"
}

// SetProgress 设置共享进度通道，全部分片向同一通道非阻塞上报
func (s *ShardedSolver) SetProgress(ch chan<- Progress) {
	s.progress = ch
}

type shardResult struct {
	index  int
	result *model.ScheduleResult
	err    error
}

// Solve 并行运行全部分片并返回冲突最少的结果。
// 冲突数并列时取编号最小的分片，保证结果选择的确定性。
func (s *ShardedSolver) Solve(ctx context.Context, in *solver.Input) (*model.ScheduleResult, error) {
	start := time.Now()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	baseSeed := s.cfg.Seed
	if baseSeed == 0 {
		baseSeed = time.Now().UnixNano()
	}

	results := make([]shardResult, s.shards)
	var wg sync.WaitGroup
	for i := 0; i < s.shards; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			cfg := *s.cfg
			// 分片间种子拉开距离，避免相邻种子产生相近轨迹
			cfg.Seed = baseSeed + int64(idx)*7919
			worker := NewAnnealingSolver(&cfg)
			if s.progress != nil {
				worker.SetProgress(s.progress)
			}
			res, err := worker.Solve(ctx, in)
			results[idx] = shardResult{index: idx, result: res, err: err}
		}(i)
	}
	wg.Wait()

	var best *shardResult
	var firstErr error
	for i := range results {
		r := &results[i]
		if r.result == nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		if best == nil || r.result.Stats.ConflictsRemaining < best.result.Stats.ConflictsRemaining {
			best = r
		}
	}
	if best == nil {
		return nil, firstErr
	}

	s.log.SolveComplete(time.Since(start), best.result.Success, best.result.Stats.ConflictsRemaining)
	return best.result, best.err
}
