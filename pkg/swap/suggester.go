// Package swap 提供排课换位建议：
// 为未能排入的课程找出哪些已排课块让位后可以腾出课位，
// 并按被移走课块的重新安置难度分级。
package swap

import (
	"sort"

	"github.com/google/uuid"

	"github.com/paike/paike/pkg/model"
	"github.com/paike/paike/pkg/scheduler/constraint"
	"github.com/paike/paike/pkg/scheduler/grid"
)

// Suggester 换位建议器。在求解结束后的网格上工作；
// 评估过程会临时移出课块，返回前总是精确恢复。
type Suggester struct {
	grid    *grid.Grid
	eval    *constraint.Evaluator
	cfg     *model.ScheduleConfig
	lessons map[uuid.UUID]*model.Lesson
}

// NewSuggester 创建换位建议器
func NewSuggester(g *grid.Grid, eval *constraint.Evaluator, cfg *model.ScheduleConfig, lessons map[uuid.UUID]*model.Lesson) *Suggester {
	return &Suggester{grid: g, eval: eval, cfg: cfg, lessons: lessons}
}

// blockRef 已排课块的标识（课程 + 起始位置）
type blockRef struct {
	lessonID uuid.UUID
	day      int
	start    int
}

// feasibility 按替代课位数量分级：
// 替代越多，移动该课块越容易
func feasibility(alternatives int) model.SwapFeasibility {
	switch {
	case alternatives >= 6:
		return model.SwapEasy
	case alternatives >= 2:
		return model.SwapModerate
	default:
		return model.SwapHard
	}
}

// SuggestFor 为失败课程生成换位建议。
// needsDouble 表示缺少的是连堂课位（连堂只考察合法起点）。
func (s *Suggester) SuggestFor(failed *model.Lesson, needsDouble bool, max int) []model.SwapSuggestion {
	if max <= 0 {
		return nil
	}

	seen := make(map[blockRef]bool)
	var suggestions []model.SwapSuggestion

	for day := 0; day < s.grid.Days(); day++ {
		for period := 1; period <= s.grid.Periods(); period++ {
			if needsDouble && !s.eval.IsValidDoubleStart(period) {
				continue
			}
			for _, ref := range s.blockersAt(failed, day, period, needsDouble) {
				if seen[ref] {
					continue
				}
				seen[ref] = true

				blocker := s.lessons[ref.lessonID]
				if blocker == nil || blocker.ID == failed.ID {
					continue
				}
				blockerDouble := s.blockIsDouble(blocker, ref)

				// 临时移出，检查失败课程能否入位，并统计被移课块的替代课位
				s.grid.Remove(blocker, ref.day, ref.start, blockerDouble)
				fits := s.eval.CanPlace(failed, day, period, needsDouble, false)
				alternatives := s.countAlternatives(blocker, blockerDouble)
				s.grid.Place(blocker, ref.day, ref.start, blockerDouble)

				if !fits {
					continue
				}
				suggestions = append(suggestions, model.SwapSuggestion{
					LessonID:     blocker.ID,
					LessonName:   blocker.Name,
					ClassID:      blocker.ClassIDs[0],
					Day:          ref.day,
					Period:       ref.start,
					Alternatives: alternatives,
					Feasibility:  feasibility(alternatives),
				})
			}
		}
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Alternatives > suggestions[j].Alternatives
	})
	if len(suggestions) > max {
		suggestions = suggestions[:max]
	}
	return suggestions
}

// blockersAt 找出占用了失败课程在（天,节）所需单元的课块
func (s *Suggester) blockersAt(failed *model.Lesson, day, period int, needsDouble bool) []blockRef {
	var refs []blockRef
	add := func(entity uuid.UUID, p int) {
		for _, occ := range s.grid.Occupants(entity, day, p) {
			start := p
			if occ.Role == model.RoleDoubleEnd {
				start = p - 1
			}
			refs = append(refs, blockRef{lessonID: occ.LessonID, day: day, start: start})
		}
	}

	periods := []int{period}
	if needsDouble {
		// 连堂候选还需要检查次节
		periods = append(periods, period+1)
	}
	for _, p := range periods {
		for _, classID := range failed.ClassIDs {
			add(classID, p)
		}
		for _, teacherID := range failed.TeacherIDs {
			add(teacherID, p)
		}
	}
	return refs
}

// blockIsDouble 判断课块是否为连堂（检查起始单元的角色）
func (s *Suggester) blockIsDouble(blocker *model.Lesson, ref blockRef) bool {
	for _, occ := range s.grid.Occupants(blocker.ClassIDs[0], ref.day, ref.start) {
		if occ.LessonID == blocker.ID {
			return occ.Role == model.RoleDoubleStart
		}
	}
	return false
}

// countAlternatives 统计课块当前可行的替代课位数（课块已被临时移出）
func (s *Suggester) countAlternatives(l *model.Lesson, isDouble bool) int {
	count := 0
	for day := 0; day < s.grid.Days(); day++ {
		for period := 1; period <= s.grid.Periods(); period++ {
			if s.eval.CanPlace(l, day, period, isDouble, false) {
				count++
			}
		}
	}
	return count
}
