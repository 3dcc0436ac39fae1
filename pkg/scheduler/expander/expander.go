// Package expander 将课程的周课时配额展开为原子排课任务并排定优先级
package expander

import (
	"sort"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/paike/paike/pkg/model"
)

// Task 一次原子排课需求：单节或连堂各占一个任务。
// 任务是瞬态对象，每次求解重新生成。
type Task struct {
	ID       uuid.UUID
	Lesson   *model.Lesson
	IsDouble bool
}

// Expand 展开全部课程：每门课先生成连堂任务，再生成单节任务
func Expand(lessons []*model.Lesson) []*Task {
	var tasks []*Task
	for _, l := range lessons {
		for i := 0; i < l.NumberOfDoubles; i++ {
			tasks = append(tasks, &Task{ID: uuid.New(), Lesson: l, IsDouble: true})
		}
		for i := 0; i < l.NumberOfSingles; i++ {
			tasks = append(tasks, &Task{ID: uuid.New(), Lesson: l, IsDouble: false})
		}
	}
	return tasks
}

// difficulty 课程排课难度排序键：
// 连堂越多越难，其次总节数，再次共享资源数（班级权重加倍）
func difficulty(l *model.Lesson) [3]int {
	return [3]int{
		l.NumberOfDoubles,
		l.TotalPeriods(),
		2*len(l.ClassIDs) + len(l.TeacherIDs),
	}
}

func harder(a, b [3]int) bool {
	for i := 0; i < 3; i++ {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}

// OrderForBacktracking 回溯策略的全局任务序：
// 所有课程的连堂任务在先，单节任务在后；同类内按课程难度降序
func OrderForBacktracking(lessons []*model.Lesson) []*Task {
	sorted := make([]*model.Lesson, len(lessons))
	copy(sorted, lessons)
	sort.SliceStable(sorted, func(i, j int) bool {
		return harder(difficulty(sorted[i]), difficulty(sorted[j]))
	})

	tasks := Expand(sorted)
	doubles := lo.Filter(tasks, func(t *Task, _ int) bool { return t.IsDouble })
	singles := lo.Filter(tasks, func(t *Task, _ int) bool { return !t.IsDouble })
	return append(doubles, singles...)
}

// OrderForGreedy 随机策略贪心阶段的任务序：
// 按 教师数×班级数 降序（共享实体多者先排），再按连堂数降序
func OrderForGreedy(lessons []*model.Lesson) []*Task {
	sorted := make([]*model.Lesson, len(lessons))
	copy(sorted, lessons)
	sort.SliceStable(sorted, func(i, j int) bool {
		ei := len(sorted[i].TeacherIDs) * len(sorted[i].ClassIDs)
		ej := len(sorted[j].TeacherIDs) * len(sorted[j].ClassIDs)
		if ei != ej {
			return ei > ej
		}
		return sorted[i].NumberOfDoubles > sorted[j].NumberOfDoubles
	})
	return Expand(sorted)
}
