// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"promo/internal/pkg/logger"
)

// Config 是所有服务共享的配置结构，来源为本地 yaml 文件 + 环境变量
// 覆盖。轮询间隔、批大小这类参数都在这里，核心代码只消费结果。
type Config struct {
	Env string `yaml:"env"` // 部署环境前缀, e.g. "prod", "staging"

	Infra struct {
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Kafka struct {
			Brokers []string `yaml:"brokers"`
		} `yaml:"kafka"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
		Mysql struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Nacos struct {
			ServerAddrs string `yaml:"serverAddrs"`
			Namespace   string `yaml:"namespace"`
			Group       string `yaml:"group"`
		} `yaml:"nacos"`
	} `yaml:"infra"`

	Outbox struct {
		PollInterval time.Duration `yaml:"pollInterval"`
		BatchSize    int           `yaml:"batchSize"`
		MaxAttempts  int           `yaml:"maxAttempts"`
	} `yaml:"outbox"`

	Inventory struct {
		SweepInterval time.Duration `yaml:"sweepInterval"`
		HoldTTL       time.Duration `yaml:"holdTTL"`
	} `yaml:"inventory"`

	Scheduler struct {
		RecoveryInterval time.Duration `yaml:"recoveryInterval"`
		LockTTL          time.Duration `yaml:"lockTTL"`
	} `yaml:"scheduler"`
}

var (
	currentConfig *Config
	configOnce    sync.Once
)

// GetCurrentConfig 返回进程级配置，首次调用时加载。
func GetCurrentConfig() *Config {
	configOnce.Do(func() {
		currentConfig = loadConfig()
	})
	return currentConfig
}

func loadConfig() *Config {
	cfg := defaultConfig()

	path := getEnv("CONFIG_PATH", "config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			logger.Ctx(context.Background()).Error().Err(err).Str("path", path).
				Msg("Malformed config file, falling back to defaults")
			cfg = defaultConfig()
		}
	}

	// 环境变量覆盖，容器部署时免改文件
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Infra.Redis.Addr = v
	}
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		cfg.Infra.Mysql.DSN = v
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v := os.Getenv("NACOS_SERVER_ADDRS"); v != "" {
		cfg.Infra.Nacos.ServerAddrs = v
	}
	if v := os.Getenv("DEPLOY_ENV"); v != "" {
		cfg.Env = v
	}
	return cfg
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Env = "dev"
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	cfg.Infra.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Infra.Redis.Addr = "localhost:6379"
	cfg.Infra.Mysql.DSN = "root:root@tcp(localhost:3306)/promo?charset=utf8mb4&parseTime=True&loc=Local"
	cfg.Infra.Nacos.ServerAddrs = "localhost:8848"
	cfg.Infra.Nacos.Group = "DEFAULT_GROUP"
	cfg.Outbox.PollInterval = 2 * time.Second
	cfg.Outbox.BatchSize = 100
	cfg.Outbox.MaxAttempts = 100
	cfg.Inventory.SweepInterval = 30 * time.Second
	cfg.Inventory.HoldTTL = 15 * time.Minute
	cfg.Scheduler.RecoveryInterval = 10 * time.Second
	cfg.Scheduler.LockTTL = 10 * time.Second
	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
