package main

import (
	"flag"
	"fmt"

	"github.com/gorilla/mux"

	"github.com/Umesh0245/smartfleet1/internal/common/config"
	"github.com/Umesh0245/smartfleet1/internal/common/db"
	"github.com/Umesh0245/smartfleet1/internal/common/logger"
	"github.com/Umesh0245/smartfleet1/internal/common/server"
	"github.com/Umesh0245/smartfleet1/internal/common/tracing"
	"github.com/Umesh0245/smartfleet1/internal/registry"
)

func main() {
	configPath := flag.String("config", "configs/registry-service.json", "配置文件路径")
	consulKey := flag.String("config-from-consul", "", "从 Consul KV 读取配置的 key（设置后忽略 -config）")
	consulHost := flag.String("consul-host", "localhost", "Consul 地址（仅 -config-from-consul 使用）")
	consulPort := flag.Int("consul-port", 8500, "Consul 端口（仅 -config-from-consul 使用）")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *consulKey, *consulHost, *consulPort)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	if cfg.Server.Name == "" || cfg.Server.Name == "default-service" {
		cfg.Server.Name = "registry-service"
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

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
	if err := gormDB.AutoMigrate(&registry.Vehicle{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	repo, err := registry.NewMySQLRepo(gormDB)
	if err != nil {
		log.Fatalf("failed to init vehicle repo: %v", err)
	}
	svc, err := registry.NewService(repo, log)
	if err != nil {
		log.Fatalf("failed to init registry service: %v", err)
	}

	router := mux.NewRouter()
	registry.NewHTTPHandler(svc, log).Register(router)

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
