package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/tower-stack/internal/auth"
	"github.com/annel0/tower-stack/internal/logging"
	"github.com/annel0/tower-stack/internal/middleware"
	"github.com/annel0/tower-stack/internal/storage"
	"github.com/annel0/tower-stack/internal/tower"
)

// Version отдаётся в /api/server
const Version = "v0.3.0"

// Game — операции игровой сессии, доступные через API
type Game interface {
	Snapshot() tower.Snapshot
	Restart(ctx context.Context) tower.Snapshot
	Drop(ctx context.Context) tower.DropOutcome
	Pause() bool
	Resume() bool
	ReleaseInput() bool
	RoundID() string
	Running() bool
	Rounds(ctx context.Context, limit int) ([]storage.RoundRecord, error)
}

// BestSource отдаёт сохранённый рекорд
type BestSource interface {
	LoadBest() int
	Key() string
}

// RestServer представляет REST API сервер
type RestServer struct {
	router  *gin.Engine
	game    Game
	best    BestSource
	users   auth.UserRepository
	tokens  *auth.TokenIssuer
	port    string
	metrics *ServerMetrics
	log     *logging.Logger
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port     string              // адрес вида ":8088"
	Game     Game                // игровая сессия
	Best     BestSource          // nil — рекорд берётся из снимка
	Users    auth.UserRepository // учётные записи операторов
	Tokens   *auth.TokenIssuer
	Registry *prometheus.Registry // nil — дефолтный регистр
	Logger   *logging.Logger
}

// ErrMissingDependency — в Config не передана обязательная зависимость.
var ErrMissingDependency = errors.New("api: missing dependency")

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) (*RestServer, error) {
	if config.Game == nil || config.Users == nil || config.Tokens == nil {
		return nil, ErrMissingDependency
	}
	if config.Port == "" {
		config.Port = ":8088"
	}
	if config.Logger == nil {
		config.Logger = logging.For(logging.ComponentAPI)
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware("tower-api"))
	router.Use(middleware.NewRequestLogger(config.Logger).Handler())

	promMw, err := middleware.NewPrometheusMiddleware("tower", config.Registry)
	if err != nil {
		return nil, err
	}
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	server := &RestServer{
		router:   router,
		game:     config.Game,
		best:     config.Best,
		users:    config.Users,
		tokens:   config.Tokens,
		port:     config.Port,
		metrics:  NewServerMetrics(),
		log:      config.Logger,
	}
	server.setupRoutes()
	return server, nil
}

// Handler возвращает http.Handler роутера (для тестов и встраивания).
func (rs *RestServer) Handler() http.Handler { return rs.router }

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.Use(corsMiddleware())

	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	api.GET("/state", rs.handleState)
	api.GET("/best", rs.handleBest)
	api.GET("/rounds", rs.handleRounds)
	api.GET("/server", rs.handleServerInfo)
	api.POST("/auth/login", rs.handleLogin)

	// управление раундом только для операторов
	control := api.Group("/")
	control.Use(rs.jwtMiddleware(), rs.operatorMiddleware())
	{
		control.POST("/round", rs.handleRestart)
		control.POST("/drop", rs.handleDrop)
		control.POST("/pause", rs.handlePause)
		control.POST("/resume", rs.handleResume)
		control.POST("/release", rs.handleRelease)
	}
}

// LoginRequest представляет запрос на вход
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse представляет ответ на вход
type LoginResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	Message   string    `json:"message"`
	UserID    uint64    `json:"user_id,omitempty"`
	IsAdmin   bool      `json:"is_admin,omitempty"`
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// StateResponse — снимок движка плюс данные сессии
type StateResponse struct {
	RoundID     string         `json:"round_id"`
	LoopRunning bool           `json:"loop_running"`
	Snapshot    tower.Snapshot `json:"snapshot"`
}

// handleLogin обрабатывает запрос на вход
func (rs *RestServer) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LoginResponse{
			Success: false,
			Message: "Неверный формат запроса",
		})
		return
	}

	user, err := rs.users.ValidateCredentials(req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrUserNotFound) {
		rs.log.Warn("🔒 Неудачный вход: %s (%s)", req.Username, c.ClientIP())
		c.JSON(http.StatusUnauthorized, LoginResponse{
			Success: false,
			Message: "Неверное имя пользователя или пароль",
		})
		return
	}
	if err != nil {
		rs.log.Error("❌ Ошибка проверки учётных данных: %v", err)
		c.JSON(http.StatusInternalServerError, LoginResponse{
			Success: false,
			Message: "Внутренняя ошибка сервера",
		})
		return
	}

	token, expires, err := rs.tokens.Generate(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, LoginResponse{
			Success: false,
			Message: "Ошибка генерации токена",
		})
		return
	}

	rs.log.Info("🔑 Оператор %s вошёл", user.Username)
	c.JSON(http.StatusOK, LoginResponse{
		Success:   true,
		Token:     token,
		ExpiresAt: expires,
		Message:   "Успешная авторизация",
		UserID:    user.ID,
		IsAdmin:   user.IsAdmin,
	})
}

func (rs *RestServer) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Состояние башни",
		Data: StateResponse{
			RoundID:     rs.game.RoundID(),
			LoopRunning: rs.game.Running(),
			Snapshot:    rs.game.Snapshot(),
		},
	})
}

func (rs *RestServer) handleBest(c *gin.Context) {
	data := map[string]interface{}{}
	if rs.best != nil {
		data["best_score"] = rs.best.LoadBest()
		data["key"] = rs.best.Key()
	} else {
		data["best_score"] = rs.game.Snapshot().BestScoreHint
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Лучший результат",
		Data:    data,
	})
}

func (rs *RestServer) handleRounds(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, GenericResponse{
				Success: false,
				Message: "limit должен быть неотрицательным числом",
			})
			return
		}
		limit = n
	}

	rounds, err := rs.game.Rounds(c.Request.Context(), limit)
	if err != nil {
		rs.log.Error("❌ Не удалось прочитать историю раундов: %v", err)
		c.JSON(http.StatusServiceUnavailable, GenericResponse{
			Success: false,
			Message: "История раундов недоступна",
		})
		return
	}
	if rounds == nil {
		rounds = []storage.RoundRecord{}
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "История раундов",
		Data: map[string]interface{}{
			"rounds": rounds,
			"total":  len(rounds),
		},
	})
}

// handleServerInfo возвращает информацию о сервере
func (rs *RestServer) handleServerInfo(c *gin.Context) {
	info := rs.metrics.Collect()
	info.LoopRunning = rs.game.Running()
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Информация о сервере",
		Data:    info,
	})
}

func (rs *RestServer) handleRestart(c *gin.Context) {
	snap := rs.game.Restart(c.Request.Context())
	rs.log.Info("🔄 Раунд перезапущен оператором %s", c.GetString(ctxUsername))
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Раунд начат",
		Data: StateResponse{
			RoundID:     rs.game.RoundID(),
			LoopRunning: rs.game.Running(),
			Snapshot:    snap,
		},
	})
}

// handleDrop возвращает итог установки. Ignored — не ошибка.
func (rs *RestServer) handleDrop(c *gin.Context) {
	out := rs.game.Drop(c.Request.Context())
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: out.Kind.String(),
		Data:    out,
	})
}

func (rs *RestServer) handlePause(c *gin.Context) {
	rs.toggle(c, rs.game.Pause(), "Пауза", "Раунд не идёт или уже на паузе")
}

func (rs *RestServer) handleResume(c *gin.Context) {
	rs.toggle(c, rs.game.Resume(), "Пауза снята", "Раунд не на паузе")
}

func (rs *RestServer) handleRelease(c *gin.Context) {
	rs.toggle(c, rs.game.ReleaseInput(), "Ввод разблокирован", "Ввод не заблокирован")
}

// toggle отвечает 200 при смене состояния и 409, если команда ничего не изменила.
func (rs *RestServer) toggle(c *gin.Context, changed bool, okMsg, conflictMsg string) {
	if !changed {
		c.JSON(http.StatusConflict, GenericResponse{
			Success: false,
			Message: conflictMsg,
		})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: okMsg,
		Data:    rs.game.Snapshot(),
	})
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	status := "ok"
	if !rs.game.Running() {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"time":   time.Now().Unix(),
	})
}
