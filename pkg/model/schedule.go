// Package model 定义排课引擎的核心数据模型
package model

import "fmt"

// IntervalSlot 课间大休：在 AfterPeriod 节之后存在非教学间隔，
// 连堂课不得跨越该边界
type IntervalSlot struct {
	AfterPeriod int `json:"after_period"`
}

// ScheduleConfig 单次求解的周网格参数（求解期间不可变）
type ScheduleConfig struct {
	DaysOfWeek      []string       `json:"days_of_week"`
	NumberOfPeriods int            `json:"number_of_periods"`
	IntervalSlots   []IntervalSlot `json:"interval_slots,omitempty"`
}

// Days 工作日数量
func (c *ScheduleConfig) Days() int {
	return len(c.DaysOfWeek)
}

// IsInterval 判断某节之后是否存在课间大休
func (c *ScheduleConfig) IsInterval(period int) bool {
	for _, s := range c.IntervalSlots {
		if s.AfterPeriod == period {
			return true
		}
	}
	return false
}

// ValidDoubleStarts 返回所有允许作为连堂起始的节次
func (c *ScheduleConfig) ValidDoubleStarts() []int {
	var starts []int
	for p := 1; p < c.NumberOfPeriods; p++ {
		if !c.IsInterval(p) {
			starts = append(starts, p)
		}
	}
	return starts
}

// Validate 校验网格参数
func (c *ScheduleConfig) Validate() error {
	if len(c.DaysOfWeek) == 0 {
		return fmt.Errorf("未设置工作日")
	}
	if c.NumberOfPeriods <= 0 {
		return fmt.Errorf("每日节数必须大于0")
	}
	for _, s := range c.IntervalSlots {
		if s.AfterPeriod < 1 || s.AfterPeriod >= c.NumberOfPeriods {
			return fmt.Errorf("课间大休位置 %d 超出范围 [1, %d)", s.AfterPeriod, c.NumberOfPeriods)
		}
	}
	return nil
}
