// Package validator 提供课表输出校验功能：独立于求解器，
// 对一份成品课表（含人工调整过的课表）做结构与约束检查。
package validator

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/paike/paike/pkg/model"
)

// ConflictType 冲突类型
type ConflictType string

const (
	ConflictClassOverlap    ConflictType = "class_overlap"    // 班级同一课位多重占用
	ConflictTeacherOverlap  ConflictType = "teacher_overlap"  // 教师同一课位跨班占用
	ConflictDoubleIntegrity ConflictType = "double_integrity" // 连排课块不完整或跨越边界
	ConflictDailyRepeat     ConflictType = "daily_repeat"     // 课程同日多次出现
	ConflictQuotaMismatch   ConflictType = "quota_mismatch"   // 排入数量与课程配额不符
)

// Conflict 冲突信息
type Conflict struct {
	Type     ConflictType `json:"type"`
	Severity string       `json:"severity"` // error/warning
	ClassID  uuid.UUID    `json:"class_id,omitempty"`
	LessonID uuid.UUID    `json:"lesson_id,omitempty"`
	Day      int          `json:"day"`
	Period   int          `json:"period,omitempty"`
	Message  string       `json:"message"`
}

// Checker 课表冲突检查器
type Checker struct {
	cfg     *model.ScheduleConfig
	lessons map[uuid.UUID]*model.Lesson
}

// NewChecker 创建课表冲突检查器
func NewChecker(cfg *model.ScheduleConfig, lessons []*model.Lesson) *Checker {
	byID := make(map[uuid.UUID]*model.Lesson, len(lessons))
	for _, l := range lessons {
		byID[l.ID] = l
	}
	return &Checker{cfg: cfg, lessons: byID}
}

// CheckAll 检查全部冲突，返回的列表顺序确定
func (c *Checker) CheckAll(slots []model.SlotRecord) []Conflict {
	var conflicts []Conflict
	conflicts = append(conflicts, c.checkClassOverlaps(slots)...)
	conflicts = append(conflicts, c.checkTeacherOverlaps(slots)...)
	conflicts = append(conflicts, c.checkDoubleIntegrity(slots)...)
	conflicts = append(conflicts, c.checkDailyRepeats(slots)...)
	conflicts = append(conflicts, c.checkQuotas(slots)...)
	return conflicts
}

type cellKey struct {
	entity uuid.UUID
	day    int
	period int
}

// checkClassOverlaps 班级同一天同一节被多条记录占用
func (c *Checker) checkClassOverlaps(slots []model.SlotRecord) []Conflict {
	counts := make(map[cellKey]int)
	for _, s := range slots {
		counts[cellKey{entity: s.ClassID, day: s.Day, period: s.PeriodNumber}]++
	}
	var conflicts []Conflict
	for _, s := range slots {
		key := cellKey{entity: s.ClassID, day: s.Day, period: s.PeriodNumber}
		if counts[key] > 1 {
			conflicts = append(conflicts, Conflict{
				Type:     ConflictClassOverlap,
				Severity: "error",
				ClassID:  s.ClassID,
				LessonID: s.LessonID,
				Day:      s.Day,
				Period:   s.PeriodNumber,
				Message:  fmt.Sprintf("班级课位被 %d 条记录占用", counts[key]),
			})
			counts[key] = 1 // 同一课位只报一次
		}
	}
	return conflicts
}

// checkTeacherOverlaps 教师同一天同一节被多个班级的课占用
func (c *Checker) checkTeacherOverlaps(slots []model.SlotRecord) []Conflict {
	counts := make(map[cellKey]int)
	for _, s := range slots {
		l := c.lessons[s.LessonID]
		if l == nil {
			continue
		}
		for _, teacherID := range l.TeacherIDs {
			counts[cellKey{entity: teacherID, day: s.Day, period: s.PeriodNumber}]++
		}
	}
	var conflicts []Conflict
	for _, s := range slots {
		l := c.lessons[s.LessonID]
		if l == nil {
			continue
		}
		for _, teacherID := range l.TeacherIDs {
			key := cellKey{entity: teacherID, day: s.Day, period: s.PeriodNumber}
			if counts[key] > 1 {
				conflicts = append(conflicts, Conflict{
					Type:     ConflictTeacherOverlap,
					Severity: "error",
					ClassID:  s.ClassID,
					LessonID: s.LessonID,
					Day:      s.Day,
					Period:   s.PeriodNumber,
					Message:  fmt.Sprintf("教师 %s 在该课位被多个班级占用", shortID(teacherID)),
				})
				counts[key] = 1
			}
		}
	}
	return conflicts
}

// checkDoubleIntegrity 连排课块必须由相邻的起止两节构成，
// 且不得跨越课间边界或越过最后一节
func (c *Checker) checkDoubleIntegrity(slots []model.SlotRecord) []Conflict {
	type slotKey struct {
		classID uuid.UUID
		day     int
		period  int
	}
	index := make(map[slotKey]model.SlotRecord)
	for _, s := range slots {
		index[slotKey{classID: s.ClassID, day: s.Day, period: s.PeriodNumber}] = s
	}
	var conflicts []Conflict
	for _, s := range slots {
		if !s.IsDoubleStart {
			continue
		}
		report := func(msg string) {
			conflicts = append(conflicts, Conflict{
				Type:     ConflictDoubleIntegrity,
				Severity: "error",
				ClassID:  s.ClassID,
				LessonID: s.LessonID,
				Day:      s.Day,
				Period:   s.PeriodNumber,
				Message:  msg,
			})
		}
		if s.PeriodNumber >= c.cfg.NumberOfPeriods {
			report("连排起始于最后一节，无法容纳第二节")
			continue
		}
		if c.cfg.IsInterval(s.PeriodNumber) {
			report("连排跨越课间边界")
			continue
		}
		next, ok := index[slotKey{classID: s.ClassID, day: s.Day, period: s.PeriodNumber + 1}]
		if !ok || next.LessonID != s.LessonID || !next.IsDoubleEnd {
			report("连排缺少相邻的结束节")
		}
	}
	return conflicts
}

// checkDailyRepeats 同一课程同一天在同一班级出现多个课块
func (c *Checker) checkDailyRepeats(slots []model.SlotRecord) []Conflict {
	type dayKey struct {
		classID  uuid.UUID
		day      int
		lessonID uuid.UUID
	}
	blocks := make(map[dayKey]int)
	for _, s := range slots {
		if s.IsDoubleEnd {
			continue // 连排按一个课块计
		}
		blocks[dayKey{classID: s.ClassID, day: s.Day, lessonID: s.LessonID}]++
	}
	keys := make([]dayKey, 0, len(blocks))
	for k, n := range blocks {
		if n > 1 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].day != keys[j].day {
			return keys[i].day < keys[j].day
		}
		if keys[i].classID != keys[j].classID {
			return keys[i].classID.String() < keys[j].classID.String()
		}
		return keys[i].lessonID.String() < keys[j].lessonID.String()
	})
	var conflicts []Conflict
	for _, k := range keys {
		conflicts = append(conflicts, Conflict{
			Type:     ConflictDailyRepeat,
			Severity: "warning",
			ClassID:  k.classID,
			LessonID: k.lessonID,
			Day:      k.day,
			Message:  fmt.Sprintf("课程同日出现 %d 个课块", blocks[k]),
		})
	}
	return conflicts
}

// checkQuotas 每个班级排入的单节数与连排数须与课程配额一致
func (c *Checker) checkQuotas(slots []model.SlotRecord) []Conflict {
	type quotaKey struct {
		classID  uuid.UUID
		lessonID uuid.UUID
	}
	singles := make(map[quotaKey]int)
	doubles := make(map[quotaKey]int)
	for _, s := range slots {
		key := quotaKey{classID: s.ClassID, lessonID: s.LessonID}
		switch {
		case s.IsDoubleStart:
			doubles[key]++
		case s.IsDoubleEnd:
			// 结束节随起始节计入
		default:
			singles[key]++
		}
	}
	var conflicts []Conflict
	for _, l := range c.sortedLessons() {
		for _, classID := range l.ClassIDs {
			key := quotaKey{classID: classID, lessonID: l.ID}
			if singles[key] == l.NumberOfSingles && doubles[key] == l.NumberOfDoubles {
				continue
			}
			conflicts = append(conflicts, Conflict{
				Type:     ConflictQuotaMismatch,
				Severity: "warning",
				ClassID:  classID,
				LessonID: l.ID,
				Message: fmt.Sprintf("课程「%s」排入 %d 单节 %d 连排，配额为 %d 单节 %d 连排",
					l.Name, singles[key], doubles[key], l.NumberOfSingles, l.NumberOfDoubles),
			})
		}
	}
	return conflicts
}

func (c *Checker) sortedLessons() []*model.Lesson {
	out := make([]*model.Lesson, 0, len(c.lessons))
	for _, l := range c.lessons {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func shortID(id uuid.UUID) string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
