package model

import (
	"testing"

	"github.com/google/uuid"
)

func validLesson() *Lesson {
	return &Lesson{
		ID:              uuid.New(),
		Name:            "数学",
		SubjectIDs:      []uuid.UUID{uuid.New()},
		TeacherIDs:      []uuid.UUID{uuid.New()},
		ClassIDs:        []uuid.UUID{uuid.New()},
		NumberOfSingles: 3,
		NumberOfDoubles: 1,
	}
}

func TestLesson_TotalPeriods(t *testing.T) {
	tests := []struct {
		name    string
		singles int
		doubles int
		total   int
		tasks   int
	}{
		{"3单1连", 3, 1, 5, 4},
		{"仅单节", 4, 0, 4, 4},
		{"仅连堂", 0, 2, 4, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &Lesson{NumberOfSingles: tt.singles, NumberOfDoubles: tt.doubles}
			if got := l.TotalPeriods(); got != tt.total {
				t.Errorf("TotalPeriods() = %d, expected %d", got, tt.total)
			}
			if got := l.TaskCount(); got != tt.tasks {
				t.Errorf("TaskCount() = %d, expected %d", got, tt.tasks)
			}
		})
	}
}

func TestLesson_Validate(t *testing.T) {
	if err := validLesson().Validate(); err != nil {
		t.Errorf("有效课程不应校验失败: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Lesson)
	}{
		{"缺少ID", func(l *Lesson) { l.ID = uuid.Nil }},
		{"无科目", func(l *Lesson) { l.SubjectIDs = nil }},
		{"无教师", func(l *Lesson) { l.TeacherIDs = nil }},
		{"无班级", func(l *Lesson) { l.ClassIDs = nil }},
		{"负课时", func(l *Lesson) { l.NumberOfSingles = -1 }},
		{"零课时", func(l *Lesson) { l.NumberOfSingles = 0; l.NumberOfDoubles = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := validLesson()
			tt.mutate(l)
			if err := l.Validate(); err == nil {
				t.Error("应该校验失败")
			}
		})
	}
}
