package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/annel0/shard-realms/internal/auth"
	"github.com/annel0/shard-realms/internal/broadcast"
	"github.com/annel0/shard-realms/internal/game"
	"github.com/annel0/shard-realms/internal/logging"
	"github.com/annel0/shard-realms/internal/middleware"
	"github.com/annel0/shard-realms/internal/shop"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RestServer REST API и websocket канал игры
type RestServer struct {
	router           *gin.Engine
	engine           *game.Engine
	auth             *auth.GameAuthenticator
	hub              *broadcast.Hub
	shop             *shop.Shop
	outboundWebhooks *OutboundWebhookManager
	metrics          *ServerMetrics
	version          string
	logger           *logging.Logger
}

// Config зависимости REST сервера. Hub, Shop и Webhooks необязательны.
type Config struct {
	Engine      *game.Engine
	Auth        *auth.GameAuthenticator
	Hub         *broadcast.Hub
	Shop        *shop.Shop
	Webhooks    *OutboundWebhookManager
	Registerer  prometheus.Registerer
	ServiceName string
	Version     string
}

// NewRestServer создает REST API сервер
func NewRestServer(config Config) (*RestServer, error) {
	if config.Engine == nil || config.Auth == nil {
		return nil, errors.New("api: engine and authenticator are required")
	}
	if config.ServiceName == "" {
		config.ServiceName = "shard-realms"
	}
	if config.Version == "" {
		config.Version = "dev"
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.NewRequestLogger(nil).Handler())
	router.Use(otelgin.Middleware(config.ServiceName))

	promMw, err := middleware.NewPrometheusMiddleware(config.ServiceName, config.Registerer)
	if err != nil {
		return nil, err
	}
	router.Use(promMw.Handler())
	router.Use(corsMiddleware())
	promMw.RegisterMetricsEndpoint(router)

	server := &RestServer{
		router:           router,
		engine:           config.Engine,
		auth:             config.Auth,
		hub:              config.Hub,
		shop:             config.Shop,
		outboundWebhooks: config.Webhooks,
		metrics:          NewServerMetrics(),
		version:          config.Version,
		logger:           logging.GetComponentLogger("api"),
	}
	server.setupRoutes()
	return server, nil
}

// Handler http.Handler сервера
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	api := rs.router.Group("/api")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", rs.handleLogin)
		authGroup.POST("/register", rs.handleRegister)
	}

	protected := api.Group("/")
	protected.Use(rs.jwtMiddleware())
	{
		protected.GET("/worlds", rs.handleListWorlds)
		protected.POST("/worlds", rs.handleCreateWorld)
		protected.GET("/worlds/:id", rs.handleShowWorld)
		protected.DELETE("/worlds/:id", rs.handleDestroyWorld)
		protected.POST("/worlds/:id/join", rs.handleJoinWorld)
		protected.PUT("/worlds/:id/host", rs.handleHostWorld)

		protected.POST("/worlds/:id/move", rs.handleMove)
		protected.POST("/worlds/:id/teleport", rs.handleTeleport)
		protected.POST("/worlds/:id/attack", rs.handleAttack)
		protected.POST("/worlds/:id/resolve", rs.handleResolve)
		protected.POST("/worlds/:id/acknowledge", rs.handleAcknowledge)

		protected.GET("/achievements", rs.handleAchievements)
		protected.POST("/achievements/:id/claim", rs.handleClaim)
		protected.GET("/balance", rs.handleBalance)
		protected.GET("/items", rs.handleItems)
		protected.GET("/server", rs.handleServerInfo)

		if rs.shop != nil {
			protected.GET("/shop", rs.handleShop)
			protected.GET("/inventory", rs.handleInventory)
			protected.POST("/shop/:item/buy", rs.handleBuy)
			protected.POST("/shop/:item/sell", rs.handleSell)
		}

		if rs.outboundWebhooks != nil {
			admin := protected.Group("/admin")
			admin.Use(rs.adminMiddleware())
			{
				admin.GET("/webhooks", rs.handleGetOutboundWebhooks)
				admin.POST("/webhooks", rs.handleCreateOutboundWebhook)
				admin.GET("/webhooks/events", rs.handleGetWebhookEventTypes)
				admin.GET("/webhooks/:id", rs.handleGetOutboundWebhook)
				admin.PUT("/webhooks/:id", rs.handleUpdateOutboundWebhook)
				admin.DELETE("/webhooks/:id", rs.handleDeleteOutboundWebhook)
				admin.POST("/webhooks/:id/test", rs.handleTestOutboundWebhook)
			}
		}
	}

	if rs.hub != nil {
		rs.router.GET("/cable", rs.jwtMiddleware(), rs.handleCable)
	}
	rs.router.GET("/health", rs.handleHealth)
}

// CredentialsRequest запрос входа и регистрации
type CredentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// GenericResponse общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func respondOK(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, GenericResponse{Success: true, Message: message, Data: data})
}

// handleLogin обрабатывает запрос на вход
func (rs *RestServer) handleLogin(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса: "+err.Error())
		return
	}

	session, err := rs.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Успешная авторизация", session)
}

// handleRegister открытая регистрация игрока
func (rs *RestServer) handleRegister(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса: "+err.Error())
		return
	}

	session, err := rs.auth.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, "Пользователь зарегистрирован", session)
}

// handleServerInfo версия сервера и показатели хоста
func (rs *RestServer) handleServerInfo(c *gin.Context) {
	respondOK(c, http.StatusOK, "Информация о сервере", gin.H{
		"name":    "Shard Realms",
		"version": rs.version,
		"status":  "running",
		"host":    rs.metrics.Snapshot(),
	})
}

// handleHealth проверка живости
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"uptime":    rs.metrics.GetUptime(),
		"timestamp": time.Now().Unix(),
	})
}

// handleCable websocket канал мира: /cable?world_id=<id>&token=<jwt>
func (rs *RestServer) handleCable(c *gin.Context) {
	worldID, err := strconv.ParseUint(c.Query("world_id"), 10, 64)
	if err != nil {
		badRequest(c, "Неверный world_id")
		return
	}
	actor := actorFrom(c)
	if err := rs.hub.ServeWS(c.Writer, c.Request, worldID, actor.UserID); err != nil {
		respondError(c, err)
	}
}

func paramID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		badRequest(c, "Неверный идентификатор: "+c.Param(name))
		return 0, false
	}
	return id, true
}

// === ОБРАБОТЧИКИ ИСХОДЯЩИХ WEBHOOK'ОВ ===

func (rs *RestServer) handleGetOutboundWebhooks(c *gin.Context) {
	webhooks := rs.outboundWebhooks.GetWebhooks()
	respondOK(c, http.StatusOK, "Список webhook'ов получен", gin.H{
		"webhooks": webhooks,
		"total":    len(webhooks),
	})
}

func (rs *RestServer) handleCreateOutboundWebhook(c *gin.Context) {
	var webhook OutboundWebhook
	if err := c.ShouldBindJSON(&webhook); err != nil {
		badRequest(c, "Неверный формат webhook'а: "+err.Error())
		return
	}
	if webhook.Name == "" || webhook.URL == "" || len(webhook.Events) == 0 {
		badRequest(c, "Обязательные поля: name, url, events")
		return
	}

	created := rs.outboundWebhooks.AddWebhook(webhook)
	rs.logger.Info("🔗 Создан webhook %d (%s) на %v", created.ID, created.Name, created.Events)
	respondOK(c, http.StatusCreated, "Webhook создан успешно", created)
}

func (rs *RestServer) webhookNotFound(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusNotFound, GenericResponse{Success: false, Message: "Webhook не найден", Code: "not_found"})
}

func (rs *RestServer) handleGetOutboundWebhook(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	webhook := rs.outboundWebhooks.GetWebhook(id)
	if webhook == nil {
		rs.webhookNotFound(c)
		return
	}
	respondOK(c, http.StatusOK, "Webhook найден", webhook)
}

func (rs *RestServer) handleUpdateOutboundWebhook(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var update WebhookUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, "Неверный формат обновлений: "+err.Error())
		return
	}

	updated := rs.outboundWebhooks.UpdateWebhook(id, update)
	if updated == nil {
		rs.webhookNotFound(c)
		return
	}
	respondOK(c, http.StatusOK, "Webhook обновлен успешно", updated)
}

func (rs *RestServer) handleDeleteOutboundWebhook(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	if !rs.outboundWebhooks.DeleteWebhook(id) {
		rs.webhookNotFound(c)
		return
	}
	respondOK(c, http.StatusOK, "Webhook удален успешно", nil)
}

// handleTestOutboundWebhook ставит в очередь тестовое событие
func (rs *RestServer) handleTestOutboundWebhook(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	webhook := rs.outboundWebhooks.GetWebhook(id)
	if webhook == nil {
		rs.webhookNotFound(c)
		return
	}

	rs.outboundWebhooks.SendEvent(TestEventType, gin.H{
		"webhook_id":   id,
		"webhook_name": webhook.Name,
		"test_time":    time.Now().Unix(),
	})
	respondOK(c, http.StatusOK, "Тестовое событие отправлено", gin.H{
		"webhook_id": id,
		"sent_at":    time.Now().Unix(),
	})
}

func (rs *RestServer) handleGetWebhookEventTypes(c *gin.Context) {
	eventTypes := rs.outboundWebhooks.GetEventTypes()
	respondOK(c, http.StatusOK, "Типы событий получены", gin.H{
		"event_types": eventTypes,
		"total":       len(eventTypes),
	})
}
