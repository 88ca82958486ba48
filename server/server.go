package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TaskHub/cache"
	"TaskHub/config"
	"TaskHub/core/account"
	"TaskHub/core/auth"
	"TaskHub/core/sms"
	"TaskHub/core/wechat"
	"TaskHub/db"
	"TaskHub/logger"
	"TaskHub/repository"
	"TaskHub/storage"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	// 设置服务器超时
	server := &http.Server{
		Addr:         cfg.ListenAddr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Connect to the database
	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("数据库连接失败", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("gorm数据库连接失败", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	// Connect to Redis
	if err := db.ConnectRedis(cfg); err != nil {
		logger.Fatal("Redis连接失败", logger.ErrorField(err))
	}
	defer db.CloseRedis()
	logger.Info("Successfully connected to Redis")

	// Initialize database schema
	if err := db.InitDB(); err != nil {
		logger.Fatal("任务表初始化失败", logger.ErrorField(err))
	}
	if err := db.MigrateAuthModels(); err != nil {
		logger.Fatal("账号表迁移失败", logger.ErrorField(err))
	}

	// 头像转存是可选能力，MinIO不可用时登录流程照常走
	avatarStore, err := storage.NewAvatarStore(cfg)
	if err != nil {
		logger.Warn("MinIO初始化失败，跳过微信头像转存", logger.ErrorField(err))
		avatarStore = nil
	}

	userRepo := repository.NewGormUserRepository(db.GormDB)
	codeRepo := repository.NewGormCodeRepository(db.GormDB)
	stateRepo := repository.NewGormStateRepository(db.GormDB)
	taskRepo := repository.NewTaskRepository(db.DB)

	sessions := cache.NewSessionCache(db.RedisClient)
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, sessions)

	gen := sms.NewCodeGenerator(cfg.CodeLength, cfg.SMSSandbox, cfg.SMSFixedCode, time.Now().UnixNano())
	codeService := account.NewCodeService(codeRepo, userRepo, sms.NewSenderFromConfig(cfg), gen, cfg.CodeTTL, cfg.CodeCooldown)

	wxClient := wechat.NewClient(cfg.WechatAppID, cfg.WechatAppSecret, cfg.WechatRedirectURI)
	wxMini := wechat.NewMiniClient(cfg.WechatMiniAppID, cfg.WechatMiniAppSecret)

	resolver := account.NewResolver(userRepo, stateRepo, codeService, wxClient, wxMini, issuer, cfg.StateTTL)
	if avatarStore != nil {
		resolver.WithAvatarMirror(avatarStore)
	}

	notifier := NewLoginNotifier()

	// 初始化处理器
	apiHandler := NewAPIHandler(resolver, codeService, taskRepo, issuer, notifier, cfg)

	// .env 热加载：改沙箱开关后切换短信实现，不重启进程
	watcher := config.NewWatcher(cfg)
	watcher.OnReload(func(newCfg *config.Config) {
		codeService.SetSender(sms.NewSenderFromConfig(newCfg))
	})
	if err := watcher.Start(".env"); err != nil {
		logger.Warn("配置热加载启动失败", logger.ErrorField(err))
	}
	defer watcher.Stop()

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 账号认证相关的API端点
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login/phone-password", apiHandler.PhonePasswordLoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login/phone-code", apiHandler.PhoneCodeLoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/send-code", apiHandler.SendCodeHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/token/refresh", apiHandler.RefreshTokenHandler).Methods(http.MethodPost)

	// 微信登录相关的API端点
	router.HandleFunc("/api/auth/wechat/login-url", apiHandler.WechatLoginURLHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/wechat/callback", apiHandler.WechatCallbackHandler).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/api/auth/wechat/mini-login", apiHandler.WechatMiniLoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/wechat/ws", notifier.WaitHandler).Methods(http.MethodGet)

	// 需要登录的账号端点
	router.HandleFunc("/api/auth/bind-phone", apiHandler.AuthMiddleware(apiHandler.BindPhoneHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/profile", apiHandler.AuthMiddleware(apiHandler.ProfileHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/auth/profile", apiHandler.AuthMiddleware(apiHandler.UpdateProfileHandler)).Methods(http.MethodPatch)

	// 任务相关的API端点
	router.HandleFunc("/api/tasks", apiHandler.AuthMiddleware(apiHandler.ListTasksHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/tasks", apiHandler.AuthMiddleware(apiHandler.CreateTaskHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/tasks/{id}", apiHandler.AuthMiddleware(apiHandler.GetTaskHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/tasks/{id}", apiHandler.AuthMiddleware(apiHandler.UpdateTaskHandler)).Methods(http.MethodPut, http.MethodPatch)
	router.HandleFunc("/api/tasks/{id}", apiHandler.AuthMiddleware(apiHandler.DeleteTaskHandler)).Methods(http.MethodDelete)

	server.Handler = router

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 在goroutine中启动服务器
	go func() {
		logger.Info("Server starting", logger.String("addr", cfg.ListenAddr))

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("服务器启动失败", logger.ErrorField(err))
		}
	}()

	// 等待中断信号
	<-stop
	logger.Info("Shutting down server...")

	// 创建一个5秒超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("Server stopped")
}
