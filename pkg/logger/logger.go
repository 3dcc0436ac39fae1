// Package logger 提供统一的日志框架
package logger

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once   sync.Once
	logger zerolog.Logger
)

// Level 日志级别
type Level = zerolog.Level

const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	FatalLevel = zerolog.FatalLevel
)

// Config 日志配置
type Config struct {
	Level      string `json:"level"`
	Format     string `json:"format"` // json/console
	Output     string `json:"output"` // stdout/stderr/file
	FilePath   string `json:"file_path,omitempty"`
	TimeFormat string `json:"time_format,omitempty"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	}
}

// Init 初始化日志器
func Init(cfg Config) {
	once.Do(func() {
		zerolog.SetGlobalLevel(parseLevel(cfg.Level))

		var output io.Writer
		switch cfg.Output {
		case "stderr":
			output = os.Stderr
		case "file":
			if cfg.FilePath != "" {
				f, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
				if err == nil {
					output = f
				} else {
					output = os.Stdout
				}
			} else {
				output = os.Stdout
			}
		default:
			output = os.Stdout
		}

		if cfg.Format == "console" {
			output = zerolog.ConsoleWriter{
				Out:        output,
				TimeFormat: cfg.TimeFormat,
			}
		}

		logger = zerolog.New(output).With().Timestamp().Logger()
	})
}

// parseLevel 解析日志级别
func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Get 获取日志器
func Get() *zerolog.Logger {
	if logger.GetLevel() == zerolog.Disabled {
		Init(DefaultConfig())
	}
	return &logger
}

// WithContext 从上下文创建日志器
func WithContext(ctx context.Context) *zerolog.Logger {
	l := Get().With().Logger()

	if reqID, ok := ctx.Value("request_id").(string); ok {
		l = l.With().Str("request_id", reqID).Logger()
	}

	return &l
}

// Debug 记录调试日志
func Debug() *zerolog.Event {
	return Get().Debug()
}

// Info 记录信息日志
func Info() *zerolog.Event {
	return Get().Info()
}

// Warn 记录警告日志
func Warn() *zerolog.Event {
	return Get().Warn()
}

// Error 记录错误日志
func Error() *zerolog.Event {
	return Get().Error()
}

// Fatal 记录致命错误日志
func Fatal() *zerolog.Event {
	return Get().Fatal()
}

// WithError 添加错误信息
func WithError(err error) *zerolog.Event {
	return Get().Error().Err(err)
}

// SolverLogger 排课求解器专用日志器
type SolverLogger struct {
	base *zerolog.Logger
}

// NewSolverLogger 创建排课求解器日志器
func NewSolverLogger(policy string) *SolverLogger {
	l := Get().With().Str("component", "solver").Str("policy", policy).Logger()
	return &SolverLogger{base: &l}
}

// StartSolve 记录求解开始
func (l *SolverLogger) StartSolve(lessons, tasks, days, periods int) {
	l.base.Info().
		Int("lessons", lessons).
		Int("tasks", tasks).
		Int("days", days).
		Int("periods", periods).
		Msg("开始排课求解")
}

// RelaxationTriggered 记录放宽"每日一次"约束
func (l *SolverLogger) RelaxationTriggered(recursions int) {
	l.base.Warn().
		Int("recursions", recursions).
		Msg("达到递归阈值，放宽同日重复约束")
}

// Reheat 记录退火重加热
func (l *SolverLogger) Reheat(iteration int, temperature float64) {
	l.base.Debug().
		Int("iteration", iteration).
		Float64("temperature", temperature).
		Msg("连续无改进，温度重加热")
}

// Shuffle 记录战略性重洗
func (l *SolverLogger) Shuffle(iteration, moved int) {
	l.base.Info().
		Int("iteration", iteration).
		Int("moved", moved).
		Msg("长期停滞，执行战略性重洗")
}

// BudgetExhausted 记录搜索预算耗尽
func (l *SolverLogger) BudgetExhausted(recursions, placed, total int) {
	l.base.Warn().
		Int("recursions", recursions).
		Int("placed", placed).
		Int("total", total).
		Msg("搜索预算耗尽，返回部分解")
}

// Progress 记录随机策略的迭代进度
func (l *SolverLogger) Progress(iteration, conflicts int, temperature float64) {
	l.base.Debug().
		Int("iteration", iteration).
		Int("conflicts", conflicts).
		Float64("temperature", temperature).
		Msg("求解进度")
}

// SolveComplete 记录求解完成
func (l *SolverLogger) SolveComplete(duration time.Duration, success bool, conflicts int) {
	l.base.Info().
		Dur("duration", duration).
		Bool("success", success).
		Int("conflicts", conflicts).
		Msg("排课求解完成")
}

// DuplicateSlot 记录输出去重时发现的重复课位
func (l *SolverLogger) DuplicateSlot(classID string, day, period int) {
	l.base.Warn().
		Str("class_id", classID).
		Int("day", day).
		Int("period", period).
		Msg("同一班级课位被多次占用，保留最后写入")
}
