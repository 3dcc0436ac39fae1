// Package solver 提供排课求解器
package solver

import (
	"github.com/paike/paike/pkg/logger"
	"github.com/paike/paike/pkg/model"
	"github.com/paike/paike/pkg/scheduler/grid"
)

// Materialize 将网格状态展平为课位记录：
// 每个被占用的（班级,天,节）单元产出一条记录，连堂课的两节各产出一条。
// 随机策略的瞬态状态可能在同一单元留下多名占用者，
// 此处按键去重（保留最后写入）并记录告警。
func Materialize(g *grid.Grid, classes []*model.Class, log *logger.SolverLogger) []model.SlotRecord {
	var slots []model.SlotRecord

	for _, class := range classes {
		for day := 0; day < g.Days(); day++ {
			for period := 1; period <= g.Periods(); period++ {
				occupants := g.Occupants(class.ID, day, period)
				if len(occupants) == 0 {
					continue
				}
				if len(occupants) > 1 && log != nil {
					log.DuplicateSlot(class.ID.String(), day, period)
				}
				// 最后写入者胜出
				occ := occupants[len(occupants)-1]
				slots = append(slots, model.SlotRecord{
					ClassID:       class.ID,
					LessonID:      occ.LessonID,
					Day:           day,
					PeriodNumber:  period,
					IsDoubleStart: occ.Role == model.RoleDoubleStart,
					IsDoubleEnd:   occ.Role == model.RoleDoubleEnd,
				})
			}
		}
	}

	return slots
}
