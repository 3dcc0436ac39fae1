// Package grid 维护排课网格的可变占用状态
package grid

import (
	"github.com/google/uuid"

	"github.com/paike/paike/pkg/model"
)

// CellKey 网格单元的复合键：实体（班级或教师）× 天 × 节
type CellKey struct {
	Entity uuid.UUID
	Day    int
	Period int
}

// Occupant 单元占用记录
type Occupant struct {
	LessonID uuid.UUID
	Role     model.BlockRole
}

// DailyKey 每日出现跟踪键：同一课程同一班级每天至多出现一次
type DailyKey struct {
	ClassID  uuid.UUID
	Day      int
	LessonID uuid.UUID
}

// TeacherDayKey 教师每日负荷计数键
type TeacherDayKey struct {
	TeacherID uuid.UUID
	Day       int
}

// Grid 可变排课状态。
// 回溯策略下每个单元至多一个占用者；随机策略允许瞬态多占用（记为冲突）。
type Grid struct {
	days    int
	periods int

	cells       map[CellKey][]Occupant
	daily       map[DailyKey]int
	teacherDay  map[TeacherDayKey]int
	teacherWeek map[uuid.UUID]int
}

// New 创建空网格
func New(days, periods int) *Grid {
	return &Grid{
		days:        days,
		periods:     periods,
		cells:       make(map[CellKey][]Occupant),
		daily:       make(map[DailyKey]int),
		teacherDay:  make(map[TeacherDayKey]int),
		teacherWeek: make(map[uuid.UUID]int),
	}
}

// Days 工作日数量
func (g *Grid) Days() int { return g.days }

// Periods 每日节数
func (g *Grid) Periods() int { return g.periods }

// Occupants 返回某实体在（天,节）的全部占用记录
func (g *Grid) Occupants(entity uuid.UUID, day, period int) []Occupant {
	return g.cells[CellKey{Entity: entity, Day: day, Period: period}]
}

// IsFree 某实体在（天,节）是否空闲
func (g *Grid) IsFree(entity uuid.UUID, day, period int) bool {
	return len(g.cells[CellKey{Entity: entity, Day: day, Period: period}]) == 0
}

// DailyCount 某班级某天已出现该课程的次数
func (g *Grid) DailyCount(classID uuid.UUID, day int, lessonID uuid.UUID) int {
	return g.daily[DailyKey{ClassID: classID, Day: day, LessonID: lessonID}]
}

// TeacherPeriodsOnDay 教师某天的已排节数
func (g *Grid) TeacherPeriodsOnDay(teacherID uuid.UUID, day int) int {
	return g.teacherDay[TeacherDayKey{TeacherID: teacherID, Day: day}]
}

// TeacherPeriodsInWeek 教师本周的已排节数
func (g *Grid) TeacherPeriodsInWeek(teacherID uuid.UUID) int {
	return g.teacherWeek[teacherID]
}

// TeacherOccupiedPeriods 教师某天被占用的节次列表（升序）
func (g *Grid) TeacherOccupiedPeriods(teacherID uuid.UUID, day int) []int {
	var periods []int
	for p := 1; p <= g.periods; p++ {
		if !g.IsFree(teacherID, day, p) {
			periods = append(periods, p)
		}
	}
	return periods
}

// blockPeriods 返回课块占用的节次及对应角色
func blockPeriods(period int, isDouble bool) []struct {
	Period int
	Role   model.BlockRole
} {
	if !isDouble {
		return []struct {
			Period int
			Role   model.BlockRole
		}{{period, model.RoleSingle}}
	}
	return []struct {
		Period int
		Role   model.BlockRole
	}{{period, model.RoleDoubleStart}, {period + 1, model.RoleDoubleEnd}}
}

// Place 将课程放入（天,节）。连堂课同时占用 period 与 period+1。
// 占用所有关联班级与教师的单元，并更新每日出现与教师负荷计数。
func (g *Grid) Place(l *model.Lesson, day, period int, isDouble bool) {
	for _, bp := range blockPeriods(period, isDouble) {
		occ := Occupant{LessonID: l.ID, Role: bp.Role}
		for _, classID := range l.ClassIDs {
			key := CellKey{Entity: classID, Day: day, Period: bp.Period}
			g.cells[key] = append(g.cells[key], occ)
		}
		for _, teacherID := range l.TeacherIDs {
			key := CellKey{Entity: teacherID, Day: day, Period: bp.Period}
			g.cells[key] = append(g.cells[key], occ)
		}
	}

	for _, classID := range l.ClassIDs {
		g.daily[DailyKey{ClassID: classID, Day: day, LessonID: l.ID}]++
	}

	periodsUsed := 1
	if isDouble {
		periodsUsed = 2
	}
	for _, teacherID := range l.TeacherIDs {
		g.teacherDay[TeacherDayKey{TeacherID: teacherID, Day: day}] += periodsUsed
		g.teacherWeek[teacherID] += periodsUsed
	}
}

// Remove 撤销一次 Place，精确恢复占用、每日跟踪与负荷计数
func (g *Grid) Remove(l *model.Lesson, day, period int, isDouble bool) {
	for _, bp := range blockPeriods(period, isDouble) {
		occ := Occupant{LessonID: l.ID, Role: bp.Role}
		for _, classID := range l.ClassIDs {
			g.removeOccupant(CellKey{Entity: classID, Day: day, Period: bp.Period}, occ)
		}
		for _, teacherID := range l.TeacherIDs {
			g.removeOccupant(CellKey{Entity: teacherID, Day: day, Period: bp.Period}, occ)
		}
	}

	for _, classID := range l.ClassIDs {
		key := DailyKey{ClassID: classID, Day: day, LessonID: l.ID}
		g.daily[key]--
		if g.daily[key] <= 0 {
			delete(g.daily, key)
		}
	}

	periodsUsed := 1
	if isDouble {
		periodsUsed = 2
	}
	for _, teacherID := range l.TeacherIDs {
		dayKey := TeacherDayKey{TeacherID: teacherID, Day: day}
		g.teacherDay[dayKey] -= periodsUsed
		if g.teacherDay[dayKey] <= 0 {
			delete(g.teacherDay, dayKey)
		}
		g.teacherWeek[teacherID] -= periodsUsed
		if g.teacherWeek[teacherID] <= 0 {
			delete(g.teacherWeek, teacherID)
		}
	}
}

// removeOccupant 从单元中移除首个匹配的占用记录
func (g *Grid) removeOccupant(key CellKey, occ Occupant) {
	occupants := g.cells[key]
	for i, o := range occupants {
		if o == occ {
			occupants = append(occupants[:i], occupants[i+1:]...)
			break
		}
	}
	if len(occupants) == 0 {
		delete(g.cells, key)
	} else {
		g.cells[key] = occupants
	}
}

// CellCount 当前被占用的单元数（用于测试与诊断）
func (g *Grid) CellCount() int {
	return len(g.cells)
}
