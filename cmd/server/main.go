// PaiKe 排课引擎服务
// 主程序入口

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/paike/paike/internal/config"
	"github.com/paike/paike/internal/database"
	"github.com/paike/paike/internal/handler"
	"github.com/paike/paike/internal/metrics"
	"github.com/paike/paike/internal/middleware"
	"github.com/paike/paike/pkg/logger"
)

// 构建信息（通过 ldflags 注入）
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger.Init(logger.Config{
		Level:  cfg.App.LogLevel,
		Format: "console",
	})

	// 打印版本信息
	fmt.Printf("PaiKe 排课引擎 v%s\n", Version)
	fmt.Printf("Build: %s (%s)\n", BuildTime, GitCommit)
	fmt.Println()

	// 数据库连接可选：连不上时降级为纯求解服务，保存/读取接口不可用
	var db *database.DB
	if d, err := database.New(&cfg.Database); err != nil {
		logger.Warn().Err(err).Msg("数据库不可用，课表保存与读取被禁用")
	} else {
		db = d
		defer db.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := db.Migrate(ctx); err != nil {
			logger.Error().Err(err).Msg("数据库迁移失败")
			os.Exit(1)
		}
		cancel()
	}

	// 创建处理器
	timetableHandler := handler.NewTimetableHandler(&cfg.Solver, db)
	statsHandler := handler.NewStatsHandler()

	// 创建 HTTP 服务器
	mux := http.NewServeMux()

	// ========================================
	// 系统端点
	// ========================================

	// 健康检查端点
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok", "service": "paike"}
		if db != nil {
			if err := db.Health(r.Context()); err != nil {
				status["database"] = "down"
			} else {
				status["database"] = "up"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(status)
	})

	// 版本信息端点
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"version":"%s","build_time":"%s","git_commit":"%s"}`, Version, BuildTime, GitCommit)
	})

	// ========================================
	// API v1 端点
	// ========================================

	// API 根路由
	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"message": "PaiKe 排课引擎 API v1",
			"endpoints": {
				"timetable": {
					"generate": "POST /api/v1/timetable/generate",
					"validate": "POST /api/v1/timetable/validate",
					"get": "GET /api/v1/timetable?id=...|term=...",
					"delete": "DELETE /api/v1/timetable?id=...",
					"list": "GET /api/v1/timetables?term=...&policy=..."
				},
				"policies": "GET /api/v1/policies",
				"stats": {
					"workload": "POST /api/v1/stats/workload"
				}
			}
		}`))
	})

	// 排课生成 API
	mux.HandleFunc("/api/v1/timetable/generate", timetableHandler.Generate)

	// 课表校验 API
	mux.HandleFunc("/api/v1/timetable/validate", timetableHandler.Validate)

	// 课表读取/删除 API，按方法分派
	mux.HandleFunc("/api/v1/timetable", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			timetableHandler.DeleteTimetable(w, r)
			return
		}
		timetableHandler.GetTimetable(w, r)
	})

	// 课表列表 API
	mux.HandleFunc("/api/v1/timetables", timetableHandler.ListTimetables)

	// 策略目录 API - 返回后端支持的排课策略及参数定义
	mux.HandleFunc("/api/v1/policies", handlePolicyCatalog)

	// 教师负荷统计 API
	mux.HandleFunc("/api/v1/stats/workload", statsHandler.Workload)

	// ========================================
	// 监控端点
	// ========================================

	// Prometheus 指标端点
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
	}

	// ========================================
	// 中间件
	// ========================================

	// 中间件执行顺序：recovery -> requestID -> rateLimit -> cors -> securityHeaders -> logging -> handler
	root := middleware.Recovery(
		requestIDMiddleware(rateLimitMiddleware(corsMiddleware(
			middleware.SecurityHeaders(loggingMiddleware(mux))))))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      root,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 启动服务器（非阻塞）
	go func() {
		logger.Info().
			Int("port", cfg.App.Port).
			Str("version", Version).
			Str("url", fmt.Sprintf("http://localhost:%d", cfg.App.Port)).
			Str("api_docs", fmt.Sprintf("http://localhost:%d/api/v1/", cfg.App.Port)).
			Msg("服务器启动")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("服务器启动失败")
			os.Exit(1)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("服务器关闭失败")
		os.Exit(1)
	}

	logger.Info().Msg("服务器已关闭")
}

// requestIDMiddleware 请求ID追踪中间件
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 尝试从请求头获取 Request ID，没有则生成新的
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		// 设置响应头
		w.Header().Set("X-Request-ID", requestID)

		// 将 Request ID 存储到 context 中
		ctx := context.WithValue(r.Context(), "request_id", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware 日志中间件
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// 获取 Request ID
		requestID, _ := r.Context().Value("request_id").(string)

		// 包装ResponseWriter以捕获状态码
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)

		logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.statusCode).
			Dur("duration", duration).
			Msg("请求处理")

		// 记录Prometheus指标
		metrics.RecordRequestMetrics(r.Method, r.URL.Path, rw.statusCode, duration)
	})
}

// responseWriter 包装ResponseWriter以捕获状态码
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RateLimiter 简单的令牌桶限流器
type RateLimiter struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // 每秒添加的令牌数
	lastRefill time.Time
	mu         sync.Mutex
}

// NewRateLimiter 创建限流器
func NewRateLimiter(requestsPerSecond float64) *RateLimiter {
	return &RateLimiter{
		tokens:     requestsPerSecond,
		maxTokens:  requestsPerSecond * 2, // 允许突发流量
		refillRate: requestsPerSecond,
		lastRefill: time.Now(),
	}
}

// Allow 检查是否允许请求
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefill = now

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

var globalRateLimiter = NewRateLimiter(100) // 默认 100 QPS

// rateLimitMiddleware 限流中间件
func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !globalRateLimiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":   true,
				"code":    "RATE_LIMITED",
				"message": "请求过于频繁，请稍后重试",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware CORS中间件
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// PolicyParam 策略参数定义
type PolicyParam struct {
	Name        string `json:"name"`        // 参数名称
	Type        string `json:"type"`        // 参数类型: int, float, bool
	Description string `json:"description"` // 参数描述
	Default     string `json:"default"`     // 默认值
	Min         string `json:"min,omitempty"`
	Max         string `json:"max,omitempty"`
}

// PolicyDefinition 策略定义
type PolicyDefinition struct {
	Name        string        `json:"name"`         // 策略唯一标识
	DisplayName string        `json:"display_name"` // 显示名称
	Kind        string        `json:"kind"`         // deterministic/stochastic
	Description string        `json:"description"`  // 详细描述
	Params      []PolicyParam `json:"params"`       // 可配置参数
}

// PolicyCatalogResponse 策略目录响应
type PolicyCatalogResponse struct {
	Policies []PolicyDefinition `json:"policies"`
}

// handlePolicyCatalog 处理策略目录请求 - 返回后端支持的排课策略定义
func handlePolicyCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	policies := []PolicyDefinition{
		{
			Name:        "backtracking",
			DisplayName: "确定性回溯搜索",
			Kind:        "deterministic",
			Description: "按最难课程优先的顺序做时间顺序回溯，课位按最少约束值排序。" +
				"同一输入总是产生同一课表；长时间停滞时自动放宽同日重复约束，" +
				"预算耗尽时返回已放置的部分解与失败课程归因。",
			Params: []PolicyParam{
				{Name: "relax_after", Type: "int", Description: "触发约束放宽的递归次数", Default: "30000", Min: "1000"},
				{Name: "max_recursions", Type: "int", Description: "递归总预算", Default: "200000", Min: "10000"},
				{Name: "max_swap_suggestions", Type: "int", Description: "每门失败课程的最大换课建议数", Default: "5", Min: "0", Max: "20"},
			},
		},
		{
			Name:        "annealing",
			DisplayName: "随机局部搜索",
			Kind:        "stochastic",
			Description: "贪心构造完整课表后以模拟退火修复冲突，支持重加热与战略性重洗。" +
				"结果依赖随机种子；固定种子可复现。可配置并行分片数，" +
				"多个分片独立搜索后取冲突最少的结果。",
			Params: []PolicyParam{
				{Name: "max_iterations", Type: "int", Description: "修复阶段迭代预算", Default: "30000", Min: "1000"},
				{Name: "seed", Type: "int", Description: "随机种子，0 为按时间播种", Default: "0"},
				{Name: "shards", Type: "int", Description: "并行分片数，0 取CPU数", Default: "0", Min: "0", Max: "64"},
				{Name: "timeout_seconds", Type: "int", Description: "求解超时(秒)", Default: "60", Min: "1"},
			},
		},
	}

	response := PolicyCatalogResponse{Policies: policies}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}
