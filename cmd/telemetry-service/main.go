package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/Umesh0245/smartfleet1/internal/cache"
	"github.com/Umesh0245/smartfleet1/internal/common/config"
	"github.com/Umesh0245/smartfleet1/internal/common/db"
	"github.com/Umesh0245/smartfleet1/internal/common/logger"
	"github.com/Umesh0245/smartfleet1/internal/common/middleware"
	"github.com/Umesh0245/smartfleet1/internal/common/server"
	"github.com/Umesh0245/smartfleet1/internal/common/tracing"
	"github.com/Umesh0245/smartfleet1/internal/mqtt"
	"github.com/Umesh0245/smartfleet1/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "configs/telemetry-service.json", "配置文件路径")
	consulKey := flag.String("config-from-consul", "", "从 Consul KV 读取配置的 key（设置后忽略 -config）")
	consulHost := flag.String("consul-host", "localhost", "Consul 地址（仅 -config-from-consul 使用）")
	consulPort := flag.Int("consul-port", 8500, "Consul 端口（仅 -config-from-consul 使用）")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *consulKey, *consulHost, *consulPort)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	if cfg.Server.Name == "" || cfg.Server.Name == "default-service" {
		cfg.Server.Name = "telemetry-service"
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 链路追踪（失败不阻塞启动）
	_, closer, err := tracing.InitTracer(cfg.Server.Name, cfg.Jaeger.Endpoint, cfg.Jaeger.Sampler)
	if err != nil {
		log.Warnf("failed to init tracer: %v", err)
	} else {
		defer closer.Close()
	}

	gormDB, err := db.NewMySQL(
		cfg.Database.Host, cfg.Database.Port,
		cfg.Database.User, cfg.Database.Password, cfg.Database.Database,
		cfg.Database.MaxIdle, cfg.Database.MaxOpen,
	)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	if err := gormDB.AutoMigrate(&telemetry.Snapshot{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	store := telemetry.NewMySQLStore(gormDB)

	c := buildCache(cfg, log)
	rec := telemetry.NewReconciler(store, c, log)

	// 摄入端点限流：100 req/s 突发 200
	limiter := middleware.NewTokenBucket(200, 100)
	handler := telemetry.NewHTTPHandler(rec, store, c, log, limiter)

	router := mux.NewRouter()
	handler.Register(router)

	// MQTT 总线入口（可选）：和 HTTP 共用同一个 Reconciler
	if cfg.MQTT.Enabled {
		consumer, err := startConsumer(cfg, rec, log)
		if err != nil {
			log.Fatalf("failed to start telemetry consumer: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			consumer.Stop(ctx)
		}()
	}

	if err := server.RunHTTPServer(cfg, log, router); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}
}

// loadConfig 配置来源二选一：Consul KV（同一份 JSON 文档）或本地文件。
func loadConfig(path, consulKey, consulHost string, consulPort int) (*config.Config, error) {
	if consulKey != "" {
		return config.LoadConfigFromConsulKV(consulHost, consulPort, consulKey)
	}
	return config.LoadConfig(path)
}

// buildCache 按配置选择缓存后端。缓存不可用不致命，降级为 Noop。
func buildCache(cfg *config.Config, log logger.Logger) cache.Cache {
	if !cfg.Cache.Enabled {
		log.Info("read cache disabled")
		return cache.Noop{}
	}
	switch cfg.Cache.Backend {
	case "memory":
		log.Info("read cache backend: memory")
		return cache.NewMemory()
	case "redis", "":
		log.Infof("read cache backend: redis %s:%d", cfg.Cache.Host, cfg.Cache.Port)
		return cache.NewRedis(cfg.Cache, log)
	default:
		log.Warnf("unknown cache backend %q, cache disabled", cfg.Cache.Backend)
		return cache.Noop{}
	}
}

func startConsumer(cfg *config.Config, rec *telemetry.Reconciler, log logger.Logger) (*telemetry.Consumer, error) {
	clientID := cfg.MQTT.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("%s-%s", cfg.Server.Name, uuid.New().String())
	}

	client, err := mqtt.NewClient(&mqtt.ClientConfig{
		BrokerURL: cfg.MQTT.BrokerURL,
		ClientID:  clientID,
	}, log)
	if err != nil {
		return nil, err
	}

	consumer := telemetry.NewConsumer(
		client, rec, log,
		cfg.MQTT.Group, cfg.MQTT.Topic,
		cfg.MQTT.QoS, cfg.MQTT.Workers,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := consumer.Start(ctx); err != nil {
		return nil, err
	}
	return consumer, nil
}
