//go:build wireinject
// +build wireinject

// Wire依赖注入配置文件
//
// 教学说明：
// 1. Wire是Google开发的编译期依赖注入工具
// 2. 与运行时反射注入（如Spring的@Autowired）不同，Wire在编译期生成代码
// 3. 优势：零运行时开销、类型安全、编译期检测循环依赖
//
// Wire工作流程：
// Step 1: 编写wire.go（本文件），定义Providers和Injector
// Step 2: 运行 `wire gen ./cmd/api`
// Step 3: Wire生成wire_gen.go，包含完整的依赖创建代码
// Step 4: main.go调用wire_gen.go中的InitializeApp()
//
// 核心概念：
// - Provider: 提供依赖的构造函数（如NewUserRepository）
// - Injector: 声明最终要构造的目标类型（如*gin.Engine）
// - wire.Build(): 告诉Wire如何组装依赖链

package main

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/wire"
	goredis "github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	apporder "github.com/xiebiao/saga-commerce/internal/application/order"
	appuser "github.com/xiebiao/saga-commerce/internal/application/user"
	"github.com/xiebiao/saga-commerce/internal/domain/user"
	"github.com/xiebiao/saga-commerce/internal/infrastructure/config"
	"github.com/xiebiao/saga-commerce/internal/infrastructure/grpc_client"
	"github.com/xiebiao/saga-commerce/internal/infrastructure/persistence/mysql"
	"github.com/xiebiao/saga-commerce/internal/infrastructure/persistence/redis"
	"github.com/xiebiao/saga-commerce/internal/interface/http/handler"
	"github.com/xiebiao/saga-commerce/internal/interface/http/middleware"
	"github.com/xiebiao/saga-commerce/pkg/dlq"
	"github.com/xiebiao/saga-commerce/pkg/inbox"
	"github.com/xiebiao/saga-commerce/pkg/jwt"
	"github.com/xiebiao/saga-commerce/pkg/mq"
	"github.com/xiebiao/saga-commerce/pkg/outbox"
	"github.com/xiebiao/saga-commerce/pkg/recovery"
	"github.com/xiebiao/saga-commerce/pkg/saga"
	"github.com/xiebiao/saga-commerce/pkg/sagastore"
)

// ========================================
// Wire Provider Sets (依赖分组)
// ========================================
// 教学说明：
// ProviderSet 将相关的 Provider 分组，便于管理和复用
// 例如：基础设施层的所有Provider放在一起

// infrastructureSet 基础设施层依赖
// 包含：配置加载、数据库连接、Redis连接
var infrastructureSet = wire.NewSet(
	config.Load,     // 加载配置文件
	mysql.NewDB,     // 创建MySQL连接
	redis.NewClient, // 创建Redis连接
)

// repositorySet 仓储层依赖
// 包含：所有Repository的构造函数
var repositorySet = wire.NewSet(
	mysql.NewUserRepository,  // 用户仓储
	mysql.NewOrderRepository, // 订单仓储
)

// sagaSet saga编排层依赖
// 包含：outbox/saga状态store、编排器本体
var sagaSet = wire.NewSet(
	outbox.NewStore,
	sagastore.NewStore,
	provideOrchestrator,
)

// domainSet 领域层依赖
// 包含：所有领域服务的构造函数
var domainSet = wire.NewSet(
	user.NewService, // 用户领域服务
)

// applicationSet 应用层依赖
// 包含：所有Use Case的构造函数
var applicationSet = wire.NewSet(
	appuser.NewRegisterUseCase,     // 用户注册用例
	appuser.NewLoginUseCase,        // 用户登录用例
	apporder.NewCreateOrderUseCase, // 创建订单用例
)

// catalogSet 下单用例查图书价格/标题要用的catalog-service gRPC客户端
// (图书数据本身已经搬到services/catalog-service自己的库里，命令API进程
// 不再直接读图书表)
var catalogSet = wire.NewSet(
	provideCatalogClient,
	provideCatalogTimeout,
)

// middlewareSet 中间件依赖
// 包含：JWT管理器、认证中间件
var middlewareSet = wire.NewSet(
	provideJWTManager,            // JWT管理器（需要从config提取参数）
	provideSessionStore,          // Session存储（需要从Redis创建）
	middleware.NewAuthMiddleware, // 认证中间件
)

// handlerSet HTTP处理器依赖
// 包含：所有Handler的构造函数
var handlerSet = wire.NewSet(
	handler.NewUserHandler,  // 用户处理器
	handler.NewOrderHandler, // 订单处理器
	handler.NewDLQHandler,   // 死信队列operator triage处理器
)

// dlqSet 死信队列operator API依赖
// dlq.Store只需要*gorm.DB；Reprocess需要一个能重新发布事件的Reprocessor，
// 命令API进程自己开一条独立的transport连接来做这件事(不复用
// SagaRuntime.Transport——那条连接的生命周期由InitializeSagaRuntime管理，
// 两个Injector之间不共享非基础设施的状态)
var dlqSet = wire.NewSet(
	dlq.NewStore,
	provideDLQReprocessor,
	wire.Bind(new(dlq.Reprocessor), new(*mq.Transport)),
)

// ========================================
// Custom Providers (自定义Provider)
// ========================================
// 教学说明：
// 有些依赖的构造函数参数不是直接的类型，需要从Config中提取
// 这时需要编写自定义Provider函数

// provideJWTManager 从配置创建JWT管理器
// 教学要点：config.Config 包含多个字段，但jwt.NewManager只需要JWT相关的配置
// Wire无法自动知道如何从Config提取参数，所以需要手动编写Provider
func provideJWTManager(cfg *config.Config) *jwt.Manager {
	return jwt.NewManager(
		cfg.JWT.Secret,
		cfg.JWT.AccessTokenExpire,
		cfg.JWT.RefreshTokenExpire,
	)
}

// provideOrchestrator 创建saga编排器并注册已知的saga类型。
// 教学要点：Wire的Provider不仅可以做类型转换，也可以承担"组装完成后再做一次
// 初始化动作"的职责——这里的初始化动作就是Register，注册动作只需在进程
// 启动时做一次，后续所有create_order类型的saga实例都复用同一份静态步骤定义。
func provideOrchestrator(sagaStore *sagastore.Store, outboxStore *outbox.Store, cfg *config.Config) *saga.Orchestrator {
	orc := saga.NewOrchestrator(sagaStore, outboxStore, saga.Config{
		StepTimeout:      cfg.Saga.StepTimeout,
		OutboxMaxRetries: cfg.Outbox.MaxRetries,
	})
	orc.Register(apporder.NewCreateOrderSagaDefinition())
	return orc
}

// SagaRuntime打包命令API进程里与HTTP请求无关、需要自己的生命周期管理的
// 那部分saga背景组件：outbox中继(发布各步骤命令)和transport连接(消费
// saga.reply事件驱动orchestrator)。main.go负责Start/Stop。
type SagaRuntime struct {
	Transport    *mq.Transport
	Relay        *outbox.Relay
	Processor    *inbox.Processor
	Orchestrator *saga.Orchestrator
	Recovery     *recovery.Worker
	Config       *config.Config
}

// provideSagaRuntime组装SagaRuntime。orchestrator本身在sagaSet里已经构造
// 好并完成了Register；这里只是再接上transport/outbox中继/reply消费三样，
// 和provideOrchestrator一样属于"组装后还需要做点额外初始化"的自定义Provider。
func provideSagaRuntime(
	cfg *config.Config,
	orc *saga.Orchestrator,
	outboxStore *outbox.Store,
	sagaStore *sagastore.Store,
	db *gorm.DB,
) (*SagaRuntime, error) {
	transport, err := mq.NewTransport(cfg.MQ.URL, cfg.MQ.Exchange)
	if err != nil {
		return nil, err
	}

	dlqStore := dlq.NewStore(db)
	inboxStore := inbox.NewStore(db)
	transport.SetMalformedSink("order-command-api", dlqStore)

	relay := outbox.NewRelay(outboxStore, transport, dlqStore, outbox.RelayConfig{
		PollInterval:   cfg.Outbox.PollInterval,
		BatchSize:      cfg.Outbox.BatchSize,
		MaxRetries:     cfg.Outbox.MaxRetries,
		PartitionCount: cfg.MQ.PartitionCount,
		ServiceName:    "order-command-api",
	})

	registry := inbox.NewRegistry()
	registry.Register("saga.reply", orc.HandleReplyEnvelope)

	processor := inbox.NewProcessor(inboxStore, registry, dlqStore, inbox.ProcessorConfig{
		MaxAttempts: cfg.Inbox.MaxAttempts,
		ServiceName: "order-command-api",
	})

	recoveryWorker := recovery.NewWorker(sagaStore, orc, recovery.Config{
		PollInterval:   cfg.Saga.RecoveryInterval,
		StuckThreshold: cfg.Saga.StuckThreshold,
	})

	return &SagaRuntime{
		Transport:    transport,
		Relay:        relay,
		Processor:    processor,
		Orchestrator: orc,
		Recovery:     recoveryWorker,
		Config:       cfg,
	}, nil
}

// provideDLQReprocessor 为命令API进程的DLQ operator API单独开一条transport连接
func provideDLQReprocessor(cfg *config.Config) (*mq.Transport, error) {
	return mq.NewTransport(cfg.MQ.URL, cfg.MQ.Exchange)
}

// provideCatalogClient 创建catalog-service长连接客户端，供下单用例做同步
// 价格/标题查询
func provideCatalogClient(cfg *config.Config) (*grpc_client.CatalogClient, error) {
	return grpc_client.NewCatalogClient(cfg.Catalog.Addr)
}

func provideCatalogTimeout(cfg *config.Config) time.Duration {
	return cfg.Catalog.Timeout
}

// provideSessionStore 从Redis客户端创建Session存储
// 教学要点：redis.NewSessionStore需要*goredis.Client参数
// Wire会自动注入redis.NewClient()的返回值
func provideSessionStore(client *goredis.Client) *redis.SessionStore {
	return redis.NewSessionStore(client)
}

// provideGinEngine 创建并配置Gin引擎
// 教学要点：
// 1. Gin引擎需要注册所有路由
// 2. 路由注册需要所有的Handler和Middleware
// 3. Wire会自动注入这些依赖
// 4. 这里直接在函数内注册路由，避免与main.go中的registerRoutes函数冲突
func provideGinEngine(
	cfg *config.Config,
	userHandler *handler.UserHandler,
	orderHandler *handler.OrderHandler,
	dlqHandler *handler.DLQHandler,
	authMiddleware *middleware.AuthMiddleware,
) *gin.Engine {
	// 设置运行模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	// 注册路由
	// 健康检查
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
			"status":  "healthy",
		})
	})

	// Swagger文档路由
	// 教学说明：
	// - ginSwagger.WrapHandler: Swagger UI的HTTP处理器
	// - swaggerFiles.Handler: 提供swagger.json等静态文件
	// - 访问 http://localhost:8080/swagger/index.html 查看API文档
	// - 生产环境建议禁用Swagger或添加访问控制
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API路由组
	v1 := r.Group("/api/v1")
	{
		// 用户模块（公开接口）
		users := v1.Group("/users")
		{
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)
		}

		// 需要认证的路由
		authorized := v1.Group("")
		authorized.Use(authMiddleware.RequireAuth())
		{
			// 个人信息
			authorized.GET("/profile", func(c *gin.Context) {
				userID := middleware.GetUserID(c)
				email := middleware.GetEmail(c)
				c.JSON(200, gin.H{
					"user_id": userID,
					"email":   email,
					"message": "这是需要登录才能访问的接口",
				})
			})
		}

		// 订单模块（需要登录）
		orders := v1.Group("/orders")
		orders.Use(authMiddleware.RequireAuth())
		{
			orders.POST("", orderHandler.CreateOrder)
		}

		// 死信队列operator triage接口（需要登录；生产环境应再叠加角色校验，
		// 这里复用现有的认证中间件，角色粒度的RBAC不在本项目范围内）
		admin := v1.Group("/admin")
		admin.Use(authMiddleware.RequireAuth())
		{
			dlqGroup := admin.Group("/dlq")
			{
				dlqGroup.GET("", dlqHandler.ListDeadLetters)
				dlqGroup.POST("/:id/note", dlqHandler.AddOperatorNote)
				dlqGroup.POST("/:id/reprocess", dlqHandler.ReprocessDeadLetter)
			}
		}
	}

	return r
}

// ========================================
// Wire Injector (依赖注入器)
// ========================================
// 教学说明：
// InitializeApp是Wire的入口函数（Injector）
//
// wire.Build() 告诉Wire需要哪些Provider来构建*gin.Engine
// Wire会自动分析依赖关系：
//
// 依赖链示例：
// *gin.Engine 需要 → *handler.UserHandler
// *handler.UserHandler 需要 → *appuser.RegisterUseCase
// *appuser.RegisterUseCase 需要 → *user.Service
// *user.Service 需要 → user.Repository
// user.Repository 需要 → *gorm.DB
// *gorm.DB 需要 → *config.Config
//
// Wire会按正确的顺序调用所有构造函数

// InitializeApp 初始化整个应用
// 返回：配置好的Gin引擎
// 错误：如果任何依赖创建失败
//
// 教学说明：
// Wire Injector函数的返回值有限制：
// - 第一个返回值：要构造的目标类型（*gin.Engine）
// - 第二个返回值（可选）：只能是error或cleanup函数
// - 不能返回多个业务对象，如果需要Config可以在provideGinEngine中处理
func InitializeApp() (*gin.Engine, error) {
	// wire.Build 的参数是所有的 Provider
	// Wire会在编译期分析依赖关系，生成初始化代码
	wire.Build(
		// 基础设施层
		infrastructureSet,

		// 仓储层
		repositorySet,

		// saga编排层
		sagaSet,

		// 死信队列operator API
		dlqSet,

		// catalog-service客户端(下单用例查价格/标题)
		catalogSet,

		// 领域层
		domainSet,

		// 应用层
		applicationSet,

		// 中间件层
		middlewareSet,

		// 接口层
		handlerSet,

		// Gin引擎
		provideGinEngine,
	)

	// 返回值类型必须与wire.Build的最终产出一致
	// Wire会在wire_gen.go中生成实际的初始化代码
	// 这里的返回值是占位符，实际运行时会被wire_gen.go替代
	return nil, nil
}

// InitializeSagaRuntime 初始化saga背景组件(outbox中继、reply消费处理器)
//
// 教学说明：一个Wire文件可以声明多个Injector，各自用wire.Build拼出自己
// 需要的那条依赖链——这里只复用infrastructureSet(配置/DB/Redis)和
// sagaSet(outbox/sagastore/orchestrator)，不需要repositorySet/domainSet这些
// 只服务于HTTP路由的Provider。main.go分别调用InitializeApp()和
// InitializeSagaRuntime()，两个Injector各自经infrastructureSet调用一次
// mysql.NewDB，因此各持有一个独立的*gorm.DB连接池。
func InitializeSagaRuntime() (*SagaRuntime, error) {
	wire.Build(
		infrastructureSet,
		sagaSet,
		provideSagaRuntime,
	)
	return nil, nil
}
