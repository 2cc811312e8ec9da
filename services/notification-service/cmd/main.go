package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"github.com/xiebiao/saga-commerce/pkg/dlq"
	"github.com/xiebiao/saga-commerce/pkg/inbox"
	"github.com/xiebiao/saga-commerce/pkg/metrics"
	"github.com/xiebiao/saga-commerce/pkg/mq"
	"github.com/xiebiao/saga-commerce/pkg/tracing"
	"github.com/xiebiao/saga-commerce/services/notification-service/internal/infrastructure/persistence/mysql"
	sagahandler "github.com/xiebiao/saga-commerce/services/notification-service/internal/saga"
)

// notification-service是纯消费端参与方：只订阅notification.events，不发布
// 任何回复，也没有outbox——和inventory/payment/shipping-service那种
// "收命令、发回复"的参与方形状不同，这里只有inbox侧
func main() {
	v := viper.New()
	v.SetConfigFile("./config/config.yaml")
	v.ReadInConfig()

	v.SetDefault("mq.exchange", "saga-commerce")
	v.SetDefault("mq.command_topic", "notification.events")
	v.SetDefault("mq.partition_count", 4)
	v.SetDefault("inbox.max_attempts", 5)
	v.SetDefault("tracing.service_name", "notification-service")
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

	repo := mysql.NewNotificationRepository(db)
	handlers := sagahandler.NewHandlers(repo)

	transport, err := mq.NewTransport(v.GetString("mq.url"), v.GetString("mq.exchange"))
	if err != nil {
		log.Fatalf("连接消息中间件失败: %v", err)
	}

	dlqStore := dlq.NewStore(db)
	inboxStore := inbox.NewStore(db)
	transport.SetMalformedSink("notification-service", dlqStore)

	registry := inbox.NewRegistry()
	registry.Register("order.order_confirmed", handlers.OnOrderConfirmed)
	registry.Register("order.order_cancelled", handlers.OnOrderCancelled)

	processor := inbox.NewProcessor(inboxStore, registry, dlqStore, inbox.ProcessorConfig{
		MaxAttempts: v.GetInt("inbox.max_attempts"),
		ServiceName: "notification-service",
	})

	commandTopic := v.GetString("mq.command_topic")
	partitionCount := v.GetInt("mq.partition_count")

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		err := transport.SubscribeAll(consumerCtx, commandTopic, partitionCount,
			func(ctx context.Context, d mq.Delivery) error {
				return processor.Handle(ctx, inbox.Delivery{Envelope: d.Envelope, Ack: d.Ack, Nack: d.Nack})
			})
		if err != nil && consumerCtx.Err() == nil {
			log.Printf("❌ 通知事件消费循环异常退出: %v", err)
		}
	}()

	log.Printf("🚀 notification-service启动，订阅topic=%s", commandTopic)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("📴 收到关闭信号，开始优雅关闭...")
	stopConsumer()
	<-consumerDone
	if err := transport.Close(); err != nil {
		log.Printf("⚠️ 关闭transport连接失败: %v", err)
	}
	if err := mysql.Close(db); err != nil {
		log.Printf("⚠️ 关闭数据库连接失败: %v", err)
	}
	if err := shutdownTracing(context.Background()); err != nil {
		log.Printf("⚠️ 关闭tracing provider失败: %v", err)
	}

	log.Println("✅ notification-service 已安全关闭")
}
