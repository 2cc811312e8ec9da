package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	paymentv1 "github.com/xiebiao/saga-commerce/proto/paymentv1"
	"github.com/xiebiao/saga-commerce/pkg/dlq"
	"github.com/xiebiao/saga-commerce/pkg/inbox"
	"github.com/xiebiao/saga-commerce/pkg/metrics"
	"github.com/xiebiao/saga-commerce/pkg/mq"
	"github.com/xiebiao/saga-commerce/pkg/outbox"
	"github.com/xiebiao/saga-commerce/pkg/participant"
	"github.com/xiebiao/saga-commerce/pkg/tracing"
	"github.com/xiebiao/saga-commerce/services/payment-service/internal/domain/payment"
	"github.com/xiebiao/saga-commerce/services/payment-service/internal/grpc/handler"
	"github.com/xiebiao/saga-commerce/services/payment-service/internal/infrastructure/persistence/mysql"
	sagahandler "github.com/xiebiao/saga-commerce/services/payment-service/internal/saga"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
	mysqlDriver "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	v := viper.New()
	v.SetConfigFile("./config/config.yaml")
	v.ReadInConfig()

	v.SetDefault("mq.exchange", "saga-commerce")
	v.SetDefault("mq.command_topic", "payment.commands")
	v.SetDefault("mq.reply_topic", "saga.replies")
	v.SetDefault("mq.partition_count", 4)
	v.SetDefault("outbox.poll_interval_ms", 5000)
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.max_retries", 5)
	v.SetDefault("inbox.max_attempts", 5)
	v.SetDefault("tracing.service_name", "payment-service")
	v.SetDefault("tracing.collector_url", "localhost:4317")

	metrics.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			log.Printf("metrics服务启动失败: %v", err)
		}
	}()

	dsn := v.GetString("database.dsn")
	port := v.GetInt("server.port")

	gormLogger := logger.Default.LogMode(logger.Info)
	db, err := gorm.Open(mysqlDriver.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	db.AutoMigrate(&payment.Payment{}, &outbox.Message{}, &inbox.Entry{}, &dlq.Entry{})
	log.Println("✅ payment_db迁移成功")

	shutdownTracing, err := tracing.InitTracer(v.GetString("tracing.service_name"), v.GetString("tracing.collector_url"))
	if err != nil {
		log.Printf("⚠️ 追踪初始化失败，本次运行不上报span: %v", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	repo := mysql.NewPaymentRepository(db)
	grpcServer := grpc.NewServer()
	paymentService := handler.NewPaymentServiceServer(repo)
	paymentv1.RegisterPaymentServiceServer(grpcServer, paymentService)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		log.Fatalf("监听端口失败: %v", err)
	}

	go func() {
		log.Printf("🚀 payment-service启动，端口:%d", port)
		log.Printf("💳 Mock支付：70%%成功率")
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("gRPC服务器启动失败: %v", err)
		}
	}()

	// saga参与方接入：outbox中继发布charge_payment的回复，inbox消费循环
	// 接收charge_payment命令及其补偿命令(退款)
	consumerCtx, stopConsumers := context.WithCancel(context.Background())
	transport, relay, consumersDone := startSagaParticipant(consumerCtx, db, v, repo)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("📴 收到关闭信号，开始优雅关闭...")
	grpcServer.GracefulStop()

	stopConsumers()
	relay.Stop()
	<-consumersDone
	if err := transport.Close(); err != nil {
		log.Printf("⚠️ 关闭transport连接失败: %v", err)
	}
	if err := shutdownTracing(context.Background()); err != nil {
		log.Printf("⚠️ 关闭tracing provider失败: %v", err)
	}

	log.Println("✅ payment-service 已安全关闭")
}

// startSagaParticipant启动payment-service作为saga参与方的背景组件，和
// inventory-service是同一套骨架：outbox中继+inbox处理器+transport消费循环。
// payment-service本身没有独立的config包，相关配置键直接从viper读取，
// 和main()里其余配置项保持同一种取值方式。
func startSagaParticipant(ctx context.Context, db *gorm.DB, v *viper.Viper, repo payment.Repository) (*mq.Transport, *outbox.Relay, <-chan struct{}) {
	transport, err := mq.NewTransport(v.GetString("mq.url"), v.GetString("mq.exchange"))
	if err != nil {
		log.Fatalf("连接消息中间件失败: %v", err)
	}

	outboxStore := outbox.NewStore(db)
	dlqStore := dlq.NewStore(db)
	inboxStore := inbox.NewStore(db)
	transport.SetMalformedSink("payment-service", dlqStore)

	partitionCount := v.GetInt("mq.partition_count")
	replyTopic := v.GetString("mq.reply_topic")
	commandTopic := v.GetString("mq.command_topic")
	maxRetries := v.GetInt("outbox.max_retries")

	relay := outbox.NewRelay(outboxStore, transport, dlqStore, outbox.RelayConfig{
		PollInterval:   time.Duration(v.GetInt("outbox.poll_interval_ms")) * time.Millisecond,
		BatchSize:      v.GetInt("outbox.batch_size"),
		MaxRetries:     maxRetries,
		PartitionCount: partitionCount,
		ServiceName:    "payment-service",
	})
	relay.Start()

	replies := participant.NewReplyPublisher(outboxStore, replyTopic, maxRetries)
	handlers := sagahandler.NewHandlers(repo, func() bool { return rand.Intn(100) < 70 })

	registry := inbox.NewRegistry()
	registry.Register("saga."+sagahandler.StepChargePayment,
		participant.NewHandler(sagahandler.StepChargePayment, handlers.ChargePayment, replies).Handle)
	registry.Register("saga."+sagahandler.StepChargePayment+".compensate",
		participant.NewHandler(sagahandler.StepChargePayment, handlers.CompensateChargePayment, replies).Handle)

	processor := inbox.NewProcessor(inboxStore, registry, dlqStore, inbox.ProcessorConfig{
		MaxAttempts: v.GetInt("inbox.max_attempts"),
		ServiceName: "payment-service",
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := transport.SubscribeAll(ctx, commandTopic, partitionCount,
			func(ctx context.Context, d mq.Delivery) error {
				return processor.Handle(ctx, inbox.Delivery{Envelope: d.Envelope, Ack: d.Ack, Nack: d.Nack})
			})
		if err != nil && ctx.Err() == nil {
			log.Printf("❌ 命令消费循环异常退出: %v", err)
		}
	}()

	log.Printf("✅ saga参与方已接入: command_topic=%s reply_topic=%s", commandTopic, replyTopic)

	return transport, relay, done
}
