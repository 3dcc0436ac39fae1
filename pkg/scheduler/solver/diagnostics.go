// Package solver 提供排课求解器
package solver

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/paike/paike/pkg/model"
)

// LessonFailure 单门课程的失败归因：
// 搜索期间每次放置尝试被阻塞时累计频次
type LessonFailure struct {
	Lesson       *model.Lesson
	TeacherBusy  int
	ClassBusy    int
	NoDoubleSlot int
	DailyLimit   int

	ByTeacher map[uuid.UUID]int
	ByClass   map[uuid.UUID]int
	ByDay     map[int]int
}

// FailureRecorder 逐课程失败记录器
type FailureRecorder struct {
	lessons map[uuid.UUID]*LessonFailure
}

// NewFailureRecorder 创建失败记录器
func NewFailureRecorder() *FailureRecorder {
	return &FailureRecorder{lessons: make(map[uuid.UUID]*LessonFailure)}
}

// For 获取（必要时创建）课程的失败记录
func (r *FailureRecorder) For(l *model.Lesson) *LessonFailure {
	f, ok := r.lessons[l.ID]
	if !ok {
		f = &LessonFailure{
			Lesson:    l,
			ByTeacher: make(map[uuid.UUID]int),
			ByClass:   make(map[uuid.UUID]int),
			ByDay:     make(map[int]int),
		}
		r.lessons[l.ID] = f
	}
	return f
}

// Get 获取课程的失败记录，不存在时返回 nil
func (r *FailureRecorder) Get(id uuid.UUID) *LessonFailure {
	return r.lessons[id]
}

// Merge 合并另一份记录（同一课程在多次尝试中的局部统计）
func (f *LessonFailure) Merge(other *LessonFailure) {
	f.TeacherBusy += other.TeacherBusy
	f.ClassBusy += other.ClassBusy
	f.NoDoubleSlot += other.NoDoubleSlot
	f.DailyLimit += other.DailyLimit
	for id, n := range other.ByTeacher {
		f.ByTeacher[id] += n
	}
	for id, n := range other.ByClass {
		f.ByClass[id] += n
	}
	for day, n := range other.ByDay {
		f.ByDay[day] += n
	}
}

// Detailed 转换为输出契约中的结构化计数
func (f *LessonFailure) Detailed() model.DetailedConflicts {
	return model.DetailedConflicts{
		TeacherBusyCount:  f.TeacherBusy,
		ClassBusyCount:    f.ClassBusy,
		NoDoubleSlotCount: f.NoDoubleSlot,
		DailyLimitCount:   f.DailyLimit,
	}
}

// topUUID 频次最高的ID；并列时取字典序最小，保证输出确定性
func topUUID(m map[uuid.UUID]int) (uuid.UUID, int) {
	keys := make([]uuid.UUID, 0, len(m))
	for id := range m {
		keys = append(keys, id)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	var best uuid.UUID
	bestCount := 0
	for _, id := range keys {
		if m[id] > bestCount {
			best, bestCount = id, m[id]
		}
	}
	return best, bestCount
}

// topDay 频次最高的天；并列时取最小天序
func topDay(m map[int]int) (int, int) {
	days := make([]int, 0, len(m))
	for d := range m {
		days = append(days, d)
	}
	sort.Ints(days)

	best, bestCount := -1, 0
	for _, d := range days {
		if m[d] > bestCount {
			best, bestCount = d, m[d]
		}
	}
	return best, bestCount
}

// Reason 生成面向用户的失败原因描述
func (f *LessonFailure) Reason(missingPeriods int, dayNames []string) string {
	msg := fmt.Sprintf("课程 %s 未能完整排入，缺少 %d 节", f.Lesson.Name, missingPeriods)

	if teacher, n := topUUID(f.ByTeacher); n > 0 {
		msg += fmt.Sprintf("；最常受阻于教师 %s（%d 次）", shortID(teacher), n)
	} else if class, n := topUUID(f.ByClass); n > 0 {
		msg += fmt.Sprintf("；最常受阻于班级 %s（%d 次）", shortID(class), n)
	}
	if day, n := topDay(f.ByDay); n > 0 && day >= 0 && day < len(dayNames) {
		msg += fmt.Sprintf("；冲突集中在%s", dayNames[day])
	}
	if f.NoDoubleSlot > 0 {
		msg += fmt.Sprintf("；连堂起点不足（%d 次）", f.NoDoubleSlot)
	}
	if f.DailyLimit > 0 {
		msg += fmt.Sprintf("；受每日一次限制（%d 次）", f.DailyLimit)
	}
	return msg
}

// shortID 诊断信息中使用的短ID
func shortID(id uuid.UUID) string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
