// Package model 定义排课引擎的核心数据模型
package model

import "github.com/google/uuid"

// BlockRole 节次在课块中的角色
type BlockRole string

const (
	RoleSingle      BlockRole = "single"       // 单节课
	RoleDoubleStart BlockRole = "double_start" // 连堂首节
	RoleDoubleEnd   BlockRole = "double_end"   // 连堂次节
)

// SlotRecord 输出的单个课位记录：每个被占用的（班级,天,节）产生一条
type SlotRecord struct {
	ClassID       uuid.UUID `json:"class_id"`
	LessonID      uuid.UUID `json:"lesson_id"`
	Day           int       `json:"day"`
	PeriodNumber  int       `json:"period_number"`
	IsDoubleStart bool      `json:"is_double_start"`
	IsDoubleEnd   bool      `json:"is_double_end"`
}

// DetailedConflicts 未排入课程的结构化受阻计数
type DetailedConflicts struct {
	TeacherBusyCount  int `json:"teacher_busy_count"`
	ClassBusyCount    int `json:"class_busy_count"`
	NoDoubleSlotCount int `json:"no_double_slot_count"`
	DailyLimitCount   int `json:"daily_limit_count"`
}

// SwapFeasibility 换位建议的可行性分级
type SwapFeasibility string

const (
	SwapEasy     SwapFeasibility = "easy"
	SwapModerate SwapFeasibility = "moderate"
	SwapHard     SwapFeasibility = "hard"
)

// SwapSuggestion 换位建议：移走该已排课位可为失败课程腾出空间
type SwapSuggestion struct {
	LessonID     uuid.UUID       `json:"lesson_id"`
	LessonName   string          `json:"lesson_name"`
	ClassID      uuid.UUID       `json:"class_id"`
	Day          int             `json:"day"`
	Period       int             `json:"period"`
	Alternatives int             `json:"alternatives"` // 被移走课程的可用替代课位数
	Feasibility  SwapFeasibility `json:"feasibility"`
}

// FailedLesson 未能完整排入的课程及其失败诊断
type FailedLesson struct {
	LessonID          uuid.UUID         `json:"lesson_id"`
	LessonName        string            `json:"lesson_name"`
	RequiredPeriods   int               `json:"required_periods"`
	FailureReason     string            `json:"failure_reason"`
	DetailedConflicts DetailedConflicts `json:"detailed_conflicts"`
	SuggestedSwaps    []SwapSuggestion  `json:"suggested_swaps,omitempty"`
}

// Stats 求解统计
type Stats struct {
	TotalSlots             int `json:"total_slots"`
	ScheduledLessons       int `json:"scheduled_lessons"`
	FailedLessonsCount     int `json:"failed_lessons_count"`
	IterationsOrRecursions int `json:"iterations_or_recursions"`
	ConflictsRemaining     int `json:"conflicts_remaining"`
}

// ScheduleResult 求解结果：两种策略（以及外部替代实现）共用同一输出契约
type ScheduleResult struct {
	Success       bool           `json:"success"`
	Slots         []SlotRecord   `json:"slots"`
	FailedLessons []FailedLesson `json:"failed_lessons,omitempty"`
	Stats         Stats          `json:"stats"`
}
