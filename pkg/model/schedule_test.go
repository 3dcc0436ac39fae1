package model

import (
	"reflect"
	"testing"
)

func fiveDayConfig() *ScheduleConfig {
	return &ScheduleConfig{
		DaysOfWeek:      []string{"周一", "周二", "周三", "周四", "周五"},
		NumberOfPeriods: 7,
		IntervalSlots:   []IntervalSlot{{AfterPeriod: 3}},
	}
}

func TestScheduleConfig_ValidDoubleStarts(t *testing.T) {
	cfg := fiveDayConfig()

	// 第3节后有大休，第7节是末节：连堂只能起始于 1,2,4,5,6
	expected := []int{1, 2, 4, 5, 6}
	if got := cfg.ValidDoubleStarts(); !reflect.DeepEqual(got, expected) {
		t.Errorf("ValidDoubleStarts() = %v, expected %v", got, expected)
	}
}

func TestScheduleConfig_IsInterval(t *testing.T) {
	cfg := fiveDayConfig()

	if !cfg.IsInterval(3) {
		t.Error("第3节后应有大休")
	}
	if cfg.IsInterval(4) {
		t.Error("第4节后不应有大休")
	}
}

func TestScheduleConfig_Validate(t *testing.T) {
	if err := fiveDayConfig().Validate(); err != nil {
		t.Errorf("有效配置不应校验失败: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*ScheduleConfig)
	}{
		{"无工作日", func(c *ScheduleConfig) { c.DaysOfWeek = nil }},
		{"零节数", func(c *ScheduleConfig) { c.NumberOfPeriods = 0 }},
		{"大休越界", func(c *ScheduleConfig) { c.IntervalSlots = []IntervalSlot{{AfterPeriod: 7}} }},
		{"大休为零", func(c *ScheduleConfig) { c.IntervalSlots = []IntervalSlot{{AfterPeriod: 0}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fiveDayConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("应该校验失败")
			}
		})
	}
}
