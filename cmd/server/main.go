// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medassist-go/internal/config"
	"medassist-go/internal/handler"
	"medassist-go/internal/middleware"
	"medassist-go/internal/model"
	"medassist-go/internal/pipeline"
	"medassist-go/internal/repository"
	"medassist-go/internal/service"
	"medassist-go/pkg/database"
	"medassist-go/pkg/es"
	"medassist-go/pkg/kafka"
	"medassist-go/pkg/llm"
	"medassist-go/pkg/log"
	"medassist-go/pkg/storage"
	"medassist-go/pkg/token"
	"medassist-go/pkg/vision"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、对象存储、ES 与 Kafka
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	// 表结构迁移
	if err := database.DB.AutoMigrate(
		&model.User{},
		&model.Conversation{},
		&model.ConversationMessage{},
		&model.ImageCapture{},
		&model.Medication{},
	); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	convRepo := repository.NewConversationRepository(database.DB)
	imageRepo := repository.NewImageRepository(database.DB)
	medRepo := repository.NewMedicationRepository(database.DB)
	obsCache := repository.NewObservationCache(database.RDB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays, cfg.JWT.RealtimeTokenExpireSeconds)
	visionClient := vision.NewClient(cfg.Vision)
	llmClient := llm.NewClient(cfg.LLM)
	userService := service.NewUserService(userRepo, jwtManager)
	conversationService := service.NewConversationService(convRepo, imageRepo, obsCache, kafka.ProduceConversationEnded)
	medicationService := service.NewMedicationService(medRepo)
	captureService := service.NewCaptureService(imageRepo, convRepo, visionClient, cfg.MinIO)
	adminService := service.NewAdminService(userRepo, convRepo, imageRepo, cfg.Elasticsearch)

	// 6. 初始化会话结束处理管道 (Processor)
	processor := pipeline.NewProcessor(convRepo, llmClient, cfg.Elasticsearch, cfg.LLM)

	// 7. 启动后台 Kafka 消费者
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	voiceHandler := handler.NewVoiceHandler(userService, conversationService, medicationService, visionClient, jwtManager, cfg.Realtime)

	// 9. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		// Auth 路由组
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", handler.NewAuthHandler(userService).RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", handler.NewUserHandler(userService).Register)
			users.POST("/login", handler.NewUserHandler(userService).Login)

			// 需要认证的路由 (仅限登录用户访问)
			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", handler.NewUserHandler(userService).GetProfile)
				authed.POST("/logout", handler.NewUserHandler(userService).Logout)
			}
		}

		// Conversation 路由组，需要认证
		conversations := apiV1.Group("/conversations")
		conversations.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			conversations.POST("", handler.NewConversationHandler(conversationService).CreateConversation)
			conversations.GET("", handler.NewConversationHandler(conversationService).ListConversations)
			conversations.GET("/:id", handler.NewConversationHandler(conversationService).GetDetail)
			conversations.POST("/:id/messages", handler.NewConversationHandler(conversationService).AppendMessage)
			conversations.POST("/:id/end", handler.NewConversationHandler(conversationService).EndConversation)
			conversations.DELETE("/:id", handler.NewConversationHandler(conversationService).DeleteConversation)
		}

		// Medication 路由组，需要认证
		medications := apiV1.Group("/medications")
		medications.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			medications.GET("", handler.NewMedicationHandler(medicationService).ListMedications)
			medications.POST("", handler.NewMedicationHandler(medicationService).AddMedication)
			medications.PUT("/:id", handler.NewMedicationHandler(medicationService).EditMedication)
			medications.DELETE("/:id", handler.NewMedicationHandler(medicationService).DeleteMedication)
			medications.PUT("/:id/reminders", handler.NewMedicationHandler(medicationService).ToggleReminders)
			medications.PUT("/:id/reminder-times", handler.NewMedicationHandler(medicationService).SetReminderTimes)
		}

		// Capture 路由组，需要认证
		captures := apiV1.Group("/captures")
		captures.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			captures.POST("", handler.NewCaptureHandler(captureService).PromoteCapture)
			captures.GET("", handler.NewCaptureHandler(captureService).ListCaptures)
		}

		// Realtime 路由 (凭证签发 + WebSocket)
		realtime := apiV1.Group("/realtime")
		realtime.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			realtime.POST("/token", voiceHandler.IssueRealtimeToken)
		}
		r.GET("/voice/:token", voiceHandler.Handle)

		// 医护端路由组：医护与管理员可访问
		staff := apiV1.Group("/staff")
		staff.Use(middleware.AuthMiddleware(jwtManager, userService), middleware.StaffAuthMiddleware())
		{
			staff.GET("/users/:id/conversations", handler.NewAdminHandler(adminService).UserConversations)
			staff.GET("/users/:id/conversations/:conversationId", handler.NewAdminHandler(adminService).UserConversationDetail)
			staff.GET("/search/transcripts", handler.NewAdminHandler(adminService).SearchTranscripts)
		}

		// 管理员路由组，需要同时通过认证和管理员授权两个中间件
		admin := apiV1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(jwtManager, userService), middleware.AdminAuthMiddleware())
		{
			admin.GET("/users/list", handler.NewAdminHandler(adminService).ListUsers)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
