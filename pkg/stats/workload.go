// Package stats 提供课表统计分析功能
package stats

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/paike/paike/pkg/model"
)

// TeacherStat 单个教师的负荷统计
type TeacherStat struct {
	TeacherID     uuid.UUID   `json:"teacher_id"`
	WeeklyPeriods int         `json:"weekly_periods"` // 每周课时总数
	DailyPeriods  []int       `json:"daily_periods"`  // 逐日课时数
	MaxDaily      int         `json:"max_daily"`      // 单日最大课时
	GapCount      int         `json:"gap_count"`      // 每周空堂总数
	BusyDays      int         `json:"busy_days"`      // 有课的天数
	Deviation     float64     `json:"deviation"`      // 与人均课时的偏差百分比
}

// WorkloadMetrics 全体教师的负荷指标
type WorkloadMetrics struct {
	AvgWeeklyPeriods float64       `json:"avg_weekly_periods"` // 人均周课时
	MaxWeeklyPeriods int           `json:"max_weekly_periods"` // 最大周课时
	MinWeeklyPeriods int           `json:"min_weekly_periods"` // 最小周课时
	WorkloadStdDev   float64       `json:"workload_std_dev"`   // 周课时标准差
	TotalGaps        int           `json:"total_gaps"`         // 全体空堂总数
	TeacherStats     []TeacherStat `json:"teacher_stats"`      // 逐教师统计

	// 综合均衡评分 (0-100)，课时越均衡、空堂越少得分越高
	BalanceScore float64 `json:"balance_score"`
}

// WorkloadAnalyzer 教师负荷分析器
type WorkloadAnalyzer struct {
	cfg     *model.ScheduleConfig
	lessons map[uuid.UUID]*model.Lesson
}

// NewWorkloadAnalyzer 创建教师负荷分析器
func NewWorkloadAnalyzer(cfg *model.ScheduleConfig, lessons []*model.Lesson) *WorkloadAnalyzer {
	byID := make(map[uuid.UUID]*model.Lesson, len(lessons))
	for _, l := range lessons {
		byID[l.ID] = l
	}
	return &WorkloadAnalyzer{cfg: cfg, lessons: byID}
}

// Analyze 统计一份课表中每位教师的周负荷、逐日负荷与空堂
func (a *WorkloadAnalyzer) Analyze(slots []model.SlotRecord) *WorkloadMetrics {
	days := a.cfg.Days()

	// 教师 -> 天 -> 已占节次集合。跨班合班课同一节只计一次。
	occupied := make(map[uuid.UUID][]map[int]bool)
	for _, s := range slots {
		l := a.lessons[s.LessonID]
		if l == nil {
			continue
		}
		for _, teacherID := range l.TeacherIDs {
			byDay, ok := occupied[teacherID]
			if !ok {
				byDay = make([]map[int]bool, days)
				for d := range byDay {
					byDay[d] = make(map[int]bool)
				}
				occupied[teacherID] = byDay
			}
			if s.Day >= 0 && s.Day < days {
				byDay[s.Day][s.PeriodNumber] = true
			}
		}
	}

	if len(occupied) == 0 {
		return &WorkloadMetrics{BalanceScore: 100}
	}

	teacherIDs := make([]uuid.UUID, 0, len(occupied))
	for id := range occupied {
		teacherIDs = append(teacherIDs, id)
	}
	sort.Slice(teacherIDs, func(i, j int) bool {
		return teacherIDs[i].String() < teacherIDs[j].String()
	})

	stats := make([]TeacherStat, 0, len(teacherIDs))
	totalWeekly := 0
	totalGaps := 0
	for _, teacherID := range teacherIDs {
		st := TeacherStat{TeacherID: teacherID, DailyPeriods: make([]int, days)}
		for day, periods := range occupied[teacherID] {
			n := len(periods)
			st.DailyPeriods[day] = n
			st.WeeklyPeriods += n
			if n == 0 {
				continue
			}
			st.BusyDays++
			if n > st.MaxDaily {
				st.MaxDaily = n
			}
			st.GapCount += gapsInDay(periods)
		}
		totalWeekly += st.WeeklyPeriods
		totalGaps += st.GapCount
		stats = append(stats, st)
	}

	avg := float64(totalWeekly) / float64(len(stats))
	maxWeekly, minWeekly := stats[0].WeeklyPeriods, stats[0].WeeklyPeriods
	var variance float64
	for i := range stats {
		w := stats[i].WeeklyPeriods
		if w > maxWeekly {
			maxWeekly = w
		}
		if w < minWeekly {
			minWeekly = w
		}
		d := float64(w) - avg
		variance += d * d
		if avg > 0 {
			stats[i].Deviation = d / avg * 100
		}
	}
	variance /= float64(len(stats))
	stdDev := math.Sqrt(variance)

	return &WorkloadMetrics{
		AvgWeeklyPeriods: avg,
		MaxWeeklyPeriods: maxWeekly,
		MinWeeklyPeriods: minWeekly,
		WorkloadStdDev:   stdDev,
		TotalGaps:        totalGaps,
		TeacherStats:     stats,
		BalanceScore:     balanceScore(avg, stdDev, totalGaps, len(stats)),
	}
}

// gapsInDay 一天内首末课之间的空堂数
func gapsInDay(periods map[int]bool) int {
	first, last := math.MaxInt, 0
	for p := range periods {
		if p < first {
			first = p
		}
		if p > last {
			last = p
		}
	}
	gaps := 0
	for p := first + 1; p < last; p++ {
		if !periods[p] {
			gaps++
		}
	}
	return gaps
}

// balanceScore 综合均衡评分：以标准差与人均空堂扣分
func balanceScore(avg, stdDev float64, totalGaps, teachers int) float64 {
	score := 100.0
	if avg > 0 {
		score -= stdDev / avg * 100 * 0.6
	}
	score -= float64(totalGaps) / float64(teachers) * 5
	if score < 0 {
		score = 0
	}
	return math.Round(score*10) / 10
}
