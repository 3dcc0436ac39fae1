package handler

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/paike/paike/pkg/errors"
	"github.com/paike/paike/pkg/model"
	"github.com/paike/paike/pkg/stats"
)

// StatsHandler 统计分析处理器
type StatsHandler struct{}

// NewStatsHandler 创建统计分析处理器
func NewStatsHandler() *StatsHandler {
	return &StatsHandler{}
}

// WorkloadRequest 教师负荷分析请求
type WorkloadRequest struct {
	Lessons  []LessonInput      `json:"lessons"`
	Schedule ScheduleInput      `json:"schedule"`
	Slots    []model.SlotRecord `json:"slots"`
}

// Workload 分析一份课表的教师负荷分布
func (h *StatsHandler) Workload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, apperrors.New(apperrors.CodeInvalidInput, "仅支持POST方法"))
		return
	}

	var req WorkloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apperrors.Wrap(err, apperrors.CodeInvalidInput, "解析请求失败"))
		return
	}
	if len(req.Slots) == 0 {
		respondError(w, apperrors.New(apperrors.CodeInvalidInput, "课位列表不能为空"))
		return
	}

	cfg, err := buildScheduleConfig(&req.Schedule)
	if err != nil {
		respondError(w, err)
		return
	}
	lessons, err := buildLessons(req.Lessons)
	if err != nil {
		respondError(w, err)
		return
	}

	metricsOut := stats.NewWorkloadAnalyzer(cfg, lessons).Analyze(req.Slots)
	respondJSON(w, http.StatusOK, metricsOut)
}
