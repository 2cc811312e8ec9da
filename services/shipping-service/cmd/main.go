package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"github.com/xiebiao/saga-commerce/pkg/dlq"
	"github.com/xiebiao/saga-commerce/pkg/inbox"
	"github.com/xiebiao/saga-commerce/pkg/metrics"
	"github.com/xiebiao/saga-commerce/pkg/mq"
	"github.com/xiebiao/saga-commerce/pkg/outbox"
	"github.com/xiebiao/saga-commerce/pkg/participant"
	"github.com/xiebiao/saga-commerce/pkg/tracing"
	"github.com/xiebiao/saga-commerce/services/shipping-service/internal/domain/shipment"
	"github.com/xiebiao/saga-commerce/services/shipping-service/internal/infrastructure/persistence/mysql"
	sagahandler "github.com/xiebiao/saga-commerce/services/shipping-service/internal/saga"
	"gorm.io/gorm"
)

// shipping-service没有自己的gRPC查询面：它只是create_order saga里
// create_shipment步骤的参与方，对外不提供查询接口（和inventory/payment-service
// 不同，那两个服务原本就有gRPC handler，shipping-service是新增参与方，
// 按需最小化实现，只接command topic/发reply，不暴露proto服务）
func main() {
	v := viper.New()
	v.SetConfigFile("./config/config.yaml")
	v.ReadInConfig()

	v.SetDefault("mq.exchange", "saga-commerce")
	v.SetDefault("mq.command_topic", "shipping.commands")
	v.SetDefault("mq.reply_topic", "saga.replies")
	v.SetDefault("mq.partition_count", 4)
	v.SetDefault("outbox.poll_interval_ms", 5000)
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.max_retries", 5)
	v.SetDefault("inbox.max_attempts", 5)
	v.SetDefault("tracing.service_name", "shipping-service")
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
	db := mysql.InitDB(dsn)

	shutdownTracing, err := tracing.InitTracer(v.GetString("tracing.service_name"), v.GetString("tracing.collector_url"))
	if err != nil {
		log.Printf("⚠️ 追踪初始化失败，本次运行不上报span: %v", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	repo := mysql.NewShipmentRepository(db)

	consumerCtx, stopConsumers := context.WithCancel(context.Background())
	transport, relay, consumersDone := startSagaParticipant(consumerCtx, db, v, repo)

	log.Println("🚀 shipping-service启动，等待create_shipment命令")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("📴 收到关闭信号，开始优雅关闭...")
	stopConsumers()
	relay.Stop()
	<-consumersDone
	if err := transport.Close(); err != nil {
		log.Printf("⚠️ 关闭transport连接失败: %v", err)
	}
	if err := mysql.Close(db); err != nil {
		log.Printf("⚠️ 关闭数据库连接失败: %v", err)
	}
	if err := shutdownTracing(context.Background()); err != nil {
		log.Printf("⚠️ 关闭tracing provider失败: %v", err)
	}

	log.Println("✅ shipping-service 已安全关闭")
}

// startSagaParticipant和inventory/payment-service是同一套骨架：outbox中继+
// inbox处理器+transport消费循环。shipping-service本身没有独立的config包，
// 相关配置键直接从viper读取，和payment-service保持同一种取值方式。
func startSagaParticipant(ctx context.Context, db *gorm.DB, v *viper.Viper, repo shipment.Repository) (*mq.Transport, *outbox.Relay, <-chan struct{}) {
	transport, err := mq.NewTransport(v.GetString("mq.url"), v.GetString("mq.exchange"))
	if err != nil {
		log.Fatalf("连接消息中间件失败: %v", err)
	}

	outboxStore := outbox.NewStore(db)
	dlqStore := dlq.NewStore(db)
	inboxStore := inbox.NewStore(db)
	transport.SetMalformedSink("shipping-service", dlqStore)

	partitionCount := v.GetInt("mq.partition_count")
	replyTopic := v.GetString("mq.reply_topic")
	commandTopic := v.GetString("mq.command_topic")
	maxRetries := v.GetInt("outbox.max_retries")

	relay := outbox.NewRelay(outboxStore, transport, dlqStore, outbox.RelayConfig{
		PollInterval:   time.Duration(v.GetInt("outbox.poll_interval_ms")) * time.Millisecond,
		BatchSize:      v.GetInt("outbox.batch_size"),
		MaxRetries:     maxRetries,
		PartitionCount: partitionCount,
		ServiceName:    "shipping-service",
	})
	relay.Start()

	replies := participant.NewReplyPublisher(outboxStore, replyTopic, maxRetries)
	handlers := sagahandler.NewHandlers(repo)

	registry := inbox.NewRegistry()
	registry.Register("saga."+sagahandler.StepCreateShipment,
		participant.NewHandler(sagahandler.StepCreateShipment, handlers.CreateShipment, replies).Handle)
	registry.Register("saga."+sagahandler.StepCreateShipment+".compensate",
		participant.NewHandler(sagahandler.StepCreateShipment, handlers.CompensateCreateShipment, replies).Handle)

	processor := inbox.NewProcessor(inboxStore, registry, dlqStore, inbox.ProcessorConfig{
		MaxAttempts: v.GetInt("inbox.max_attempts"),
		ServiceName: "shipping-service",
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
