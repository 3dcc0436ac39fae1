package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/paike/paike/internal/config"
	"github.com/paike/paike/internal/database"
	"github.com/paike/paike/internal/metrics"
	"github.com/paike/paike/internal/repository"
	apperrors "github.com/paike/paike/pkg/errors"
	"github.com/paike/paike/pkg/model"
	"github.com/paike/paike/pkg/scheduler/optimizer"
	"github.com/paike/paike/pkg/scheduler/solver"
	"github.com/paike/paike/pkg/validator"
)

// TimetableHandler 排课处理器
type TimetableHandler struct {
	cfg *config.SolverConfig
	db  *database.DB // 可为空：无数据库时禁用保存与读取
}

// NewTimetableHandler 创建排课处理器
func NewTimetableHandler(cfg *config.SolverConfig, db *database.DB) *TimetableHandler {
	return &TimetableHandler{cfg: cfg, db: db}
}

// LessonInput 课程输入
type LessonInput struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	SubjectIDs      []string `json:"subject_ids"`
	TeacherIDs      []string `json:"teacher_ids"`
	ClassIDs        []string `json:"class_ids"`
	NumberOfSingles int      `json:"number_of_singles"`
	NumberOfDoubles int      `json:"number_of_doubles"`
	Color           string   `json:"color,omitempty"`
	Notes           string   `json:"notes,omitempty"`
}

// ClassInput 班级输入
type ClassInput struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Grade int    `json:"grade,omitempty"`
}

// ScheduleInput 周结构输入
type ScheduleInput struct {
	DaysOfWeek      []string `json:"days_of_week"`
	NumberOfPeriods int      `json:"number_of_periods"`
	IntervalSlots   []int    `json:"interval_after_periods,omitempty"`
}

// GenerateOptions 生成选项
type GenerateOptions struct {
	TimeoutSeconds int   `json:"timeout_seconds,omitempty"`
	Seed           int64 `json:"seed,omitempty"`   // 随机策略种子，0 取时间
	Shards         int   `json:"shards,omitempty"` // 随机策略并行分片数
	Save           bool  `json:"save,omitempty"`   // 保存到数据库，需提供 term
}

// GenerateRequest 排课生成请求
type GenerateRequest struct {
	Term     string           `json:"term,omitempty"`
	WeekTag  string           `json:"week_tag,omitempty"`
	Policy   string           `json:"policy,omitempty"` // backtracking/annealing，空取默认策略
	Lessons  []LessonInput    `json:"lessons"`
	Classes  []ClassInput     `json:"classes"`
	Schedule ScheduleInput    `json:"schedule"`
	Options  *GenerateOptions `json:"options,omitempty"`
}

// GenerateResponse 排课生成响应
type GenerateResponse struct {
	Success       bool                 `json:"success"`
	Partial       bool                 `json:"partial,omitempty"` // 预算耗尽或取消后的部分解
	Message       string               `json:"message,omitempty"`
	TimetableID   string               `json:"timetable_id,omitempty"`
	Policy        string               `json:"policy"`
	Slots         []model.SlotRecord   `json:"slots"`
	FailedLessons []model.FailedLesson `json:"failed_lessons,omitempty"`
	Stats         model.Stats          `json:"stats"`
	Duration      string               `json:"duration"`
}

// Generate 生成课表
func (h *TimetableHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, apperrors.New(apperrors.CodeInvalidInput, "仅支持POST方法"))
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apperrors.Wrap(err, apperrors.CodeInvalidInput, "解析请求失败"))
		return
	}
	if ve := validateGenerateRequest(&req); ve.HasErrors() {
		respondError(w, ve.ToAppError())
		return
	}

	input, err := buildInput(&req)
	if err != nil {
		respondError(w, err)
		return
	}

	policy := req.Policy
	if policy == "" {
		policy = h.cfg.DefaultPolicy
	}
	sol, err := h.buildSolver(policy, req.Options)
	if err != nil {
		respondError(w, err)
		return
	}

	timeout := h.cfg.DefaultTimeout
	if req.Options != nil && req.Options.TimeoutSeconds > 0 {
		timeout = time.Duration(req.Options.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	start := time.Now()
	result, solveErr := sol.Solve(ctx, input)
	duration := time.Since(start)
	metrics.RecordSolve(policy, result != nil && result.Success, duration)

	if result == nil {
		respondError(w, solveErr)
		return
	}
	metrics.SetConflictsRemaining(policy, result.Stats.ConflictsRemaining)
	metrics.SetFailedLessons(policy, result.Stats.FailedLessonsCount)

	resp := GenerateResponse{
		Success:       result.Success,
		Message:       resultMessage(result, solveErr),
		Policy:        policy,
		Slots:         result.Slots,
		FailedLessons: result.FailedLessons,
		Stats:         result.Stats,
		Duration:      duration.String(),
	}
	if solveErr != nil || (!result.Success && len(result.Slots) > 0) {
		resp.Partial = true
	}

	if req.Options != nil && req.Options.Save {
		id, err := h.save(ctx, &req, policy, result)
		if err != nil {
			respondError(w, err)
			return
		}
		resp.TimetableID = id.String()
	}

	respondJSON(w, http.StatusOK, resp)
}

// validateGenerateRequest 请求形状级校验，缺失项一次性聚合返回
func validateGenerateRequest(req *GenerateRequest) *apperrors.ValidationErrors {
	ve := &apperrors.ValidationErrors{}
	if len(req.Lessons) == 0 {
		ve.Add("lessons", "课程列表为空")
	}
	if len(req.Classes) == 0 {
		ve.Add("classes", "班级列表为空")
	}
	if len(req.Schedule.DaysOfWeek) == 0 {
		ve.Add("schedule.days_of_week", "未提供排课天")
	}
	if req.Schedule.NumberOfPeriods < 1 {
		ve.Add("schedule.number_of_periods", "每天节数必须为正")
	}
	if req.Options != nil && req.Options.Save && req.Term == "" {
		ve.Add("term", "保存课表需要提供 term")
	}
	return ve
}

// resultMessage 求解结果的人读摘要
func resultMessage(result *model.ScheduleResult, solveErr error) string {
	switch {
	case solveErr != nil:
		return solveErr.Error()
	case result.Success:
		return "排课成功"
	default:
		return "未找到完整解，返回当前最优课表"
	}
}

// buildSolver 按策略名构建求解器
func (h *TimetableHandler) buildSolver(policy string, opts *GenerateOptions) (solver.Solver, error) {
	switch policy {
	case "backtracking":
		cfg := solver.DefaultBacktrackingConfig()
		if h.cfg.MaxRecursions > 0 {
			cfg.MaxRecursions = h.cfg.MaxRecursions
		}
		return solver.NewBacktrackingSolver(cfg), nil
	case "annealing":
		cfg := optimizer.DefaultConfig()
		if h.cfg.MaxIterations > 0 {
			cfg.MaxIterations = h.cfg.MaxIterations
		}
		shards := h.cfg.Shards
		if opts != nil {
			cfg.Seed = opts.Seed
			if opts.Shards > 0 {
				shards = opts.Shards
			}
		}
		if shards == 1 {
			return optimizer.NewAnnealingSolver(cfg), nil
		}
		return optimizer.NewShardedSolver(cfg, shards), nil
	default:
		return nil, apperrors.New(apperrors.CodeInvalidInput,
			"未知的排课策略: "+policy).WithDetails("可选值: backtracking, annealing")
	}
}

// save 在事务内保存课表头与全部课位
func (h *TimetableHandler) save(ctx context.Context, req *GenerateRequest, policy string, result *model.ScheduleResult) (uuid.UUID, error) {
	if h.db == nil {
		return uuid.Nil, apperrors.New(apperrors.CodeInvalidInput, "未配置数据库，无法保存课表")
	}
	if req.Term == "" {
		return uuid.Nil, apperrors.New(apperrors.CodeInvalidInput, "保存课表需要提供 term")
	}

	t := &repository.Timetable{
		ID:      uuid.New(),
		Term:    req.Term,
		WeekTag: req.WeekTag,
		Policy:  policy,
		Success: result.Success,
		Stats:   result.Stats,
	}
	err := h.db.Transaction(ctx, func(tx *sql.Tx) error {
		repo := repository.NewTimetableRepository(tx)
		return repo.Create(ctx, t, result.Slots)
	})
	if err != nil {
		return uuid.Nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "保存课表失败")
	}
	return t.ID, nil
}

// ValidateRequest 课表校验请求
type ValidateRequest struct {
	Lessons  []LessonInput      `json:"lessons"`
	Schedule ScheduleInput      `json:"schedule"`
	Slots    []model.SlotRecord `json:"slots"`
}

// ValidateResponse 课表校验响应
type ValidateResponse struct {
	IsValid   bool                 `json:"is_valid"`
	Errors    int                  `json:"errors"`
	Warnings  int                  `json:"warnings"`
	Conflicts []validator.Conflict `json:"conflicts,omitempty"`
}

// Validate 校验一份成品课表
func (h *TimetableHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, apperrors.New(apperrors.CodeInvalidInput, "仅支持POST方法"))
		return
	}

	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apperrors.Wrap(err, apperrors.CodeInvalidInput, "解析请求失败"))
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

	conflicts := validator.NewChecker(cfg, lessons).CheckAll(req.Slots)
	resp := ValidateResponse{Conflicts: conflicts}
	for _, c := range conflicts {
		if c.Severity == "error" {
			resp.Errors++
		} else {
			resp.Warnings++
		}
	}
	resp.IsValid = resp.Errors == 0

	respondJSON(w, http.StatusOK, resp)
}

// GetTimetable 读取已保存的课表及其课位
func (h *TimetableHandler) GetTimetable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, apperrors.New(apperrors.CodeInvalidInput, "仅支持GET方法"))
		return
	}
	if h.db == nil {
		respondError(w, apperrors.New(apperrors.CodeInvalidInput, "未配置数据库"))
		return
	}

	idStr := r.URL.Query().Get("id")
	repo := repository.NewTimetableRepository(h.db)

	var t *repository.Timetable
	var err error
	if idStr != "" {
		id, parseErr := uuid.Parse(idStr)
		if parseErr != nil {
			respondError(w, apperrors.Wrap(parseErr, apperrors.CodeInvalidInput, "无效的课表ID格式"))
			return
		}
		t, err = repo.GetByID(r.Context(), id)
	} else {
		term := r.URL.Query().Get("term")
		if term == "" {
			respondError(w, apperrors.New(apperrors.CodeInvalidInput, "需要提供 id 或 term 参数"))
			return
		}
		t, err = repo.GetLatest(r.Context(), term, r.URL.Query().Get("week_tag"))
	}
	if err != nil {
		respondError(w, err)
		return
	}

	slots, err := repo.GetSlots(r.Context(), t.ID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"timetable": t,
		"slots":     slots,
	})
}

// ListTimetables 按学期、策略过滤查询课表头列表
func (h *TimetableHandler) ListTimetables(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, apperrors.New(apperrors.CodeInvalidInput, "仅支持GET方法"))
		return
	}
	if h.db == nil {
		respondError(w, apperrors.New(apperrors.CodeInvalidInput, "未配置数据库"))
		return
	}

	q := r.URL.Query()
	filter := repository.DefaultListFilter().WithTerm(q.Get("term"))
	filter.Policy = q.Get("policy")
	if v := q.Get("order_by"); v != "" {
		filter.OrderBy = v
	}
	if v := q.Get("order_dir"); v != "" {
		filter.OrderDir = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		filter = filter.WithLimit(v)
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v >= 0 {
		filter = filter.WithOffset(v)
	}

	timetables, total, err := repository.NewTimetableRepository(h.db).List(r.Context(), filter)
	if err != nil {
		respondError(w, apperrors.Wrap(err, apperrors.CodeDatabaseError, "查询课表列表失败"))
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"timetables": timetables,
		"total":      total,
		"limit":      filter.Limit,
		"offset":     filter.Offset,
	})
}

// DeleteTimetable 删除课表，其课位随外键级联删除
func (h *TimetableHandler) DeleteTimetable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		respondError(w, apperrors.New(apperrors.CodeInvalidInput, "仅支持DELETE方法"))
		return
	}
	if h.db == nil {
		respondError(w, apperrors.New(apperrors.CodeInvalidInput, "未配置数据库"))
		return
	}

	id, err := parseUUID("课表ID", r.URL.Query().Get("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	if err := repository.NewTimetableRepository(h.db).Delete(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"deleted": true,
		"id":      id.String(),
	})
}

// buildInput 将请求转换为求解器输入
func buildInput(req *GenerateRequest) (*solver.Input, error) {
	cfg, err := buildScheduleConfig(&req.Schedule)
	if err != nil {
		return nil, err
	}
	lessons, err := buildLessons(req.Lessons)
	if err != nil {
		return nil, err
	}

	classes := make([]*model.Class, 0, len(req.Classes))
	for _, c := range req.Classes {
		id, err := parseUUID("班级ID", c.ID)
		if err != nil {
			return nil, err
		}
		classes = append(classes, &model.Class{ID: id, Name: c.Name, Grade: c.Grade})
	}

	return &solver.Input{Lessons: lessons, Classes: classes, Config: cfg}, nil
}

func buildScheduleConfig(in *ScheduleInput) (*model.ScheduleConfig, error) {
	cfg := &model.ScheduleConfig{
		DaysOfWeek:      in.DaysOfWeek,
		NumberOfPeriods: in.NumberOfPeriods,
	}
	for _, p := range in.IntervalSlots {
		cfg.IntervalSlots = append(cfg.IntervalSlots, model.IntervalSlot{AfterPeriod: p})
	}
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidInput, "周网格参数无效")
	}
	return cfg, nil
}

func buildLessons(inputs []LessonInput) ([]*model.Lesson, error) {
	lessons := make([]*model.Lesson, 0, len(inputs))
	for _, in := range inputs {
		id, err := parseUUID("课程ID", in.ID)
		if err != nil {
			return nil, err
		}
		l := &model.Lesson{
			ID:              id,
			Name:            in.Name,
			NumberOfSingles: in.NumberOfSingles,
			NumberOfDoubles: in.NumberOfDoubles,
			Color:           in.Color,
			Notes:           in.Notes,
		}
		if l.SubjectIDs, err = parseUUIDs("学科ID", in.SubjectIDs); err != nil {
			return nil, err
		}
		if l.TeacherIDs, err = parseUUIDs("教师ID", in.TeacherIDs); err != nil {
			return nil, err
		}
		if l.ClassIDs, err = parseUUIDs("班级ID", in.ClassIDs); err != nil {
			return nil, err
		}
		lessons = append(lessons, l)
	}
	return lessons, nil
}

func parseUUID(label, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, apperrors.Wrap(err, apperrors.CodeInvalidInput, "无效的"+label+"格式: "+s)
	}
	return id, nil
}

func parseUUIDs(label string, ss []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(ss))
	for _, s := range ss {
		id, err := parseUUID(label, s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
