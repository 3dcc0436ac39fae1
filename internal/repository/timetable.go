package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	apperrors "github.com/paike/paike/pkg/errors"
	"github.com/paike/paike/pkg/model"
)

// Timetable 课表记录：一次求解产生的完整周课表及其统计摘要
type Timetable struct {
	ID        uuid.UUID   `json:"id"`
	Term      string      `json:"term"`     // 学期标识，如 2026-spring
	WeekTag   string      `json:"week_tag"` // 可选的周标签，区分单双周等
	Policy    string      `json:"policy"`   // backtracking/annealing
	Success   bool        `json:"success"`
	Stats     model.Stats `json:"stats"`
	CreatedAt time.Time   `json:"created_at"`
}

// TimetableRepositoryInterface 课表仓储接口
type TimetableRepositoryInterface interface {
	Create(ctx context.Context, t *Timetable, slots []model.SlotRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*Timetable, error)
	GetSlots(ctx context.Context, id uuid.UUID) ([]model.SlotRecord, error)
	GetLatest(ctx context.Context, term, weekTag string) (*Timetable, error)
	List(ctx context.Context, filter ListFilter) ([]*Timetable, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// TimetableRepository 课表仓储实现
type TimetableRepository struct {
	db DB
}

// NewTimetableRepository 创建课表仓储
func NewTimetableRepository(db DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

// Create 写入课表及其全部课位。调用方应在事务内调用，
// 保证课表头与课位的原子性。
func (r *TimetableRepository) Create(ctx context.Context, t *Timetable, slots []model.SlotRecord) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	statsJSON, err := json.Marshal(t.Stats)
	if err != nil {
		return fmt.Errorf("序列化课表统计失败: %w", err)
	}

	query := `
		INSERT INTO timetables (id, term, week_tag, policy, success, stats, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := r.db.ExecContext(ctx, query,
		t.ID, t.Term, t.WeekTag, t.Policy, t.Success, statsJSON, t.CreatedAt,
	); err != nil {
		return wrapWriteError(err, "创建课表记录失败")
	}

	return r.insertSlots(ctx, t.ID, slots)
}

// insertSlots 批量写入课位，每批最多 500 行
func (r *TimetableRepository) insertSlots(ctx context.Context, timetableID uuid.UUID, slots []model.SlotRecord) error {
	const batchSize = 500
	for start := 0; start < len(slots); start += batchSize {
		end := start + batchSize
		if end > len(slots) {
			end = len(slots)
		}
		batch := slots[start:end]

		var sb strings.Builder
		sb.WriteString(`INSERT INTO timetable_slots
			(timetable_id, class_id, lesson_id, day, period, double_start, double_end) VALUES `)
		args := make([]interface{}, 0, len(batch)*7)
		for i, s := range batch {
			if i > 0 {
				sb.WriteString(", ")
			}
			base := i * 7
			fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
				base+1, base+2, base+3, base+4, base+5, base+6, base+7)
			args = append(args, timetableID, s.ClassID, s.LessonID, s.Day, s.PeriodNumber,
				s.IsDoubleStart, s.IsDoubleEnd)
		}

		if _, err := r.db.ExecContext(ctx, sb.String(), args...); err != nil {
			return wrapWriteError(err, "批量写入课位失败")
		}
	}
	return nil
}

// wrapWriteError 唯一约束冲突说明同一格被写入两次，映射为排课冲突
func wrapWriteError(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return apperrors.ScheduleConflict(pqErr.Detail)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// GetByID 根据ID获取课表头
func (r *TimetableRepository) GetByID(ctx context.Context, id uuid.UUID) (*Timetable, error) {
	query := `
		SELECT id, term, week_tag, policy, success, stats, created_at
		FROM timetables
		WHERE id = $1
	`
	return r.scanTimetable(r.db.QueryRowContext(ctx, query, id))
}

// GetLatest 获取某学期（及周标签）最新的课表头
func (r *TimetableRepository) GetLatest(ctx context.Context, term, weekTag string) (*Timetable, error) {
	query := `
		SELECT id, term, week_tag, policy, success, stats, created_at
		FROM timetables
		WHERE term = $1 AND week_tag = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanTimetable(r.db.QueryRowContext(ctx, query, term, weekTag))
}

// GetSlots 获取课表的全部课位，按班级、天、节次排序
func (r *TimetableRepository) GetSlots(ctx context.Context, id uuid.UUID) ([]model.SlotRecord, error) {
	query := `
		SELECT class_id, lesson_id, day, period, double_start, double_end
		FROM timetable_slots
		WHERE timetable_id = $1
		ORDER BY class_id, day, period
	`
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("查询课位失败: %w", err)
	}
	defer rows.Close()

	var slots []model.SlotRecord
	for rows.Next() {
		var s model.SlotRecord
		if err := rows.Scan(&s.ClassID, &s.LessonID, &s.Day, &s.PeriodNumber,
			&s.IsDoubleStart, &s.IsDoubleEnd); err != nil {
			return nil, fmt.Errorf("扫描课位失败: %w", err)
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// List 按过滤器查询课表头列表
func (r *TimetableRepository) List(ctx context.Context, filter ListFilter) ([]*Timetable, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.Term != "" {
		conditions = append(conditions, fmt.Sprintf("term = $%d", argNum))
		args = append(args, filter.Term)
		argNum++
	}
	if filter.Policy != "" {
		conditions = append(conditions, fmt.Sprintf("policy = $%d", argNum))
		args = append(args, filter.Policy)
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM timetables %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("统计课表数量失败: %w", err)
	}

	orderBy := filter.OrderBy
	switch orderBy {
	case "term", "policy", "created_at":
	default:
		orderBy = "created_at"
	}
	orderDir := filter.OrderDir
	if orderDir != "asc" {
		orderDir = "desc"
	}
	query := fmt.Sprintf(`
		SELECT id, term, week_tag, policy, success, stats, created_at
		FROM timetables %s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d
	`, whereClause, orderBy, orderDir, argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("查询课表列表失败: %w", err)
	}
	defer rows.Close()

	var timetables []*Timetable
	for rows.Next() {
		t, err := scanTimetableRow(rows)
		if err != nil {
			return nil, 0, err
		}
		timetables = append(timetables, t)
	}
	return timetables, total, rows.Err()
}

// Delete 删除课表，课位随外键级联删除
func (r *TimetableRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM timetables WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("删除课表失败: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperrors.New(apperrors.CodeNotFound, "课表不存在")
	}
	return nil
}

func (r *TimetableRepository) scanTimetable(row *sql.Row) (*Timetable, error) {
	t, err := scanTimetableRow(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.CodeNotFound, "课表不存在")
	}
	return t, err
}

func scanTimetableRow(s Scanner) (*Timetable, error) {
	var t Timetable
	var statsJSON []byte
	if err := s.Scan(&t.ID, &t.Term, &t.WeekTag, &t.Policy, &t.Success,
		&statsJSON, &t.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(statsJSON, &t.Stats); err != nil {
		return nil, fmt.Errorf("解析课表统计失败: %w", err)
	}
	return &t, nil
}
