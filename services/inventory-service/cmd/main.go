package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
	"gorm.io/gorm"

	inventoryv1 "github.com/xiebiao/saga-commerce/proto/inventoryv1"
	"github.com/xiebiao/saga-commerce/pkg/dlq"
	"github.com/xiebiao/saga-commerce/pkg/inbox"
	"github.com/xiebiao/saga-commerce/pkg/metrics"
	"github.com/xiebiao/saga-commerce/pkg/mq"
	"github.com/xiebiao/saga-commerce/pkg/outbox"
	"github.com/xiebiao/saga-commerce/pkg/participant"
	"github.com/xiebiao/saga-commerce/pkg/tracing"
	"github.com/xiebiao/saga-commerce/services/inventory-service/internal/domain/inventory"
	"github.com/xiebiao/saga-commerce/services/inventory-service/internal/grpc/handler"
	"github.com/xiebiao/saga-commerce/services/inventory-service/internal/infrastructure/config"
	"github.com/xiebiao/saga-commerce/services/inventory-service/internal/infrastructure/persistence/mysql"
	redisStore "github.com/xiebiao/saga-commerce/services/inventory-service/internal/infrastructure/persistence/redis"
	sagahandler "github.com/xiebiao/saga-commerce/services/inventory-service/internal/saga"
)

// main inventory-service主程序
//
// 教学要点：
// 1. 双存储架构启动流程
//   - MySQL：持久化存储
//   - Redis：高性能缓存 + Lua脚本
//
// 2. Lua脚本预加载
//   - 启动时加载脚本到Redis
//   - 后续使用EVALSHA调用（性能优化）
//
// 3. saga参与方接入：同一个进程除了对外暴露的gRPC查询接口，还要跑
//    outbox中继（把reserve_inventory的回复事件发出去）和inbox消费循环
//    （接收reserve_inventory命令及其补偿命令），三者共享同一份MySQL
//    连接和Redis库存存储。
//
// 4. 优雅关闭
//   - 停止接受新请求
//   - 等待现有请求完成
//   - 关闭数据库连接
func main() {
	// 步骤1：加载配置
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 初始化Prometheus指标并在独立端口暴露，和gRPC业务端口分开
	metrics.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			log.Printf("metrics服务启动失败: %v", err)
		}
	}()

	// 步骤2：初始化MySQL连接
	db, err := mysql.NewDB(&cfg.Database)
	if err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}

	sqlDB, _ := db.DB()
	defer sqlDB.Close()

	log.Println("✅ 数据库连接成功")

	shutdownTracing, err := tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.CollectorURL)
	if err != nil {
		log.Printf("⚠️ 追踪初始化失败，本次运行不上报span: %v", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	// 步骤3：初始化Redis连接
	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})

	defer redisClient.Close()

	// 测试Redis连接
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Redis连接失败: %v", err)
	}

	log.Println("✅ Redis连接成功")

	// 步骤4：创建Redis库存存储并预加载Lua脚本
	inventoryStore := redisStore.NewInventoryStore(redisClient)

	// 教学要点：预加载Lua脚本到Redis
	// 好处：后续使用EVALSHA调用，减少网络传输
	if err := inventoryStore.LoadScripts(ctx); err != nil {
		log.Fatalf("加载Lua脚本失败: %v", err)
	}

	log.Println("✅ Lua脚本预加载成功")

	// 步骤5：创建仓储实例
	inventoryRepo := mysql.NewInventoryRepository(db)
	logRepo := mysql.NewLogRepository(db)

	// 步骤6：创建gRPC Handler（同步查询走gRPC，不经过saga命令流）
	inventoryHandler := handler.NewInventoryServiceServer(inventoryRepo, logRepo, inventoryStore)

	// 步骤7：创建gRPC服务器
	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(10*1024*1024), // 10MB
		grpc.MaxSendMsgSize(10*1024*1024),
	)

	// 注册服务
	inventoryv1.RegisterInventoryServiceServer(grpcServer, inventoryHandler)

	// 注册反射服务（用于grpcurl调试）
	reflection.Register(grpcServer)

	// 步骤8：启动gRPC服务器
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("监听端口失败: %v", err)
	}

	// 在goroutine中启动服务器
	go func() {
		log.Printf("🚀 inventory-service 启动成功，监听端口: %s", addr)
		log.Printf("📊 高并发库存扣减已启用（Redis + Lua脚本）")
		if err := grpcServer.Serve(listener); err != nil {
			log.Fatalf("gRPC服务器启动失败: %v", err)
		}
	}()

	// 步骤9：接入saga命令流——transport连接、outbox中继、inbox消费循环
	consumerCtx, stopConsumers := context.WithCancel(context.Background())
	transport, relay, consumersDone := startSagaParticipant(consumerCtx, db, cfg, inventoryRepo, inventoryStore)

	// 步骤10：优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("📴 收到关闭信号，开始优雅关闭...")

	// 停止gRPC服务器
	grpcServer.GracefulStop()

	// 停止saga参与方：先停消费循环，再停outbox中继，最后关transport连接
	stopConsumers()
	relay.Stop()
	<-consumersDone
	if err := transport.Close(); err != nil {
		log.Printf("⚠️ 关闭transport连接失败: %v", err)
	}
	if err := shutdownTracing(context.Background()); err != nil {
		log.Printf("⚠️ 关闭tracing provider失败: %v", err)
	}

	log.Println("✅ inventory-service 已安全关闭")
}

// startSagaParticipant启动inventory-service作为saga参与方所需的全部背景
// 组件：outbox中继（发布reserve_inventory的回复事件）、inbox处理器（对
// reserve_inventory命令和它的补偿命令去重分发）、transport消费循环。
// 返回transport/relay供上层优雅关闭时使用，以及消费循环退出的信号channel。
func startSagaParticipant(
	ctx context.Context,
	db *gorm.DB,
	cfg *config.Config,
	inventoryRepo inventory.Repository,
	inventoryStore *redisStore.InventoryStore,
) (*mq.Transport, *outbox.Relay, <-chan struct{}) {
	transport, err := mq.NewTransport(cfg.MQ.URL, cfg.MQ.Exchange)
	if err != nil {
		log.Fatalf("连接消息中间件失败: %v", err)
	}

	outboxStore := outbox.NewStore(db)
	dlqStore := dlq.NewStore(db)
	inboxStore := inbox.NewStore(db)
	transport.SetMalformedSink("inventory-service", dlqStore)

	relay := outbox.NewRelay(outboxStore, transport, dlqStore, outbox.RelayConfig{
		PollInterval:   cfg.Outbox.PollInterval(),
		BatchSize:      cfg.Outbox.BatchSize,
		MaxRetries:     cfg.Outbox.MaxRetries,
		PartitionCount: cfg.MQ.PartitionCount,
		ServiceName:    "inventory-service",
	})
	relay.Start()

	replies := participant.NewReplyPublisher(outboxStore, cfg.MQ.ReplyTopic, cfg.Outbox.MaxRetries)
	handlers := sagahandler.NewHandlers(inventoryRepo, inventoryStore)

	registry := inbox.NewRegistry()
	registry.Register("saga."+sagahandler.StepReserveInventory,
		participant.NewHandler(sagahandler.StepReserveInventory, handlers.ReserveInventory, replies).Handle)
	registry.Register("saga."+sagahandler.StepReserveInventory+".compensate",
		participant.NewHandler(sagahandler.StepReserveInventory, handlers.CompensateReserveInventory, replies).Handle)

	processor := inbox.NewProcessor(inboxStore, registry, dlqStore, inbox.ProcessorConfig{
		MaxAttempts: cfg.Inbox.MaxAttempts,
		ServiceName: "inventory-service",
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := transport.SubscribeAll(ctx, cfg.MQ.CommandTopic, cfg.MQ.PartitionCount,
			func(ctx context.Context, d mq.Delivery) error {
				return processor.Handle(ctx, inbox.Delivery{Envelope: d.Envelope, Ack: d.Ack, Nack: d.Nack})
			})
		if err != nil && ctx.Err() == nil {
			log.Printf("❌ 命令消费循环异常退出: %v", err)
		}
	}()

	log.Printf("✅ saga参与方已接入: command_topic=%s reply_topic=%s", cfg.MQ.CommandTopic, cfg.MQ.ReplyTopic)

	return transport, relay, done
}
