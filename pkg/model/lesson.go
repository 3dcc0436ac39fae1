// Package model 定义排课引擎的核心数据模型
package model

import (
	"fmt"

	"github.com/google/uuid"
)

// Lesson 课程单元：一组科目由一组教师同时授课给一组班级，
// 并指定每周需要的单节课与连堂课数量
type Lesson struct {
	ID              uuid.UUID   `json:"id"`
	Name            string      `json:"lesson_name"`
	SubjectIDs      []uuid.UUID `json:"subject_ids"`
	TeacherIDs      []uuid.UUID `json:"teacher_ids"`
	ClassIDs        []uuid.UUID `json:"class_ids"` // 平行班：同一教师同时授课的多个班级
	NumberOfSingles int         `json:"number_of_singles"`
	NumberOfDoubles int         `json:"number_of_doubles"`
	Color           string      `json:"color,omitempty"`
	Notes           string      `json:"notes,omitempty"`
}

// TotalPeriods 每周所需总节数（连堂按两节计）
func (l *Lesson) TotalPeriods() int {
	return l.NumberOfSingles + 2*l.NumberOfDoubles
}

// TaskCount 展开后的原子排课任务数
func (l *Lesson) TaskCount() int {
	return l.NumberOfSingles + l.NumberOfDoubles
}

// Validate 校验课程定义
func (l *Lesson) Validate() error {
	if l.ID == uuid.Nil {
		return fmt.Errorf("课程缺少ID")
	}
	if len(l.SubjectIDs) == 0 {
		return fmt.Errorf("课程 %s 未关联任何科目", l.Name)
	}
	if len(l.TeacherIDs) == 0 {
		return fmt.Errorf("课程 %s 未关联任何教师", l.Name)
	}
	if len(l.ClassIDs) == 0 {
		return fmt.Errorf("课程 %s 未关联任何班级", l.Name)
	}
	if l.NumberOfSingles < 0 || l.NumberOfDoubles < 0 {
		return fmt.Errorf("课程 %s 的课时数不能为负", l.Name)
	}
	if l.NumberOfSingles+l.NumberOfDoubles == 0 {
		return fmt.Errorf("课程 %s 未设置任何课时（单节与连堂均为0）", l.Name)
	}
	return nil
}

// Class 班级
type Class struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Grade int       `json:"grade"`
}
