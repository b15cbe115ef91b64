package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	App struct {
		Name string `yaml:"name"`
		Env  string `yaml:"env"`
	} `yaml:"app"`

	Database struct {
		Postgres struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			User     string `yaml:"user"`
			Password string `yaml:"password"`
			DBName   string `yaml:"dbname"`
			SSLMode  string `yaml:"sslmode"`
		} `yaml:"postgres"`
	} `yaml:"database"`

	NATS struct {
		URL      string `yaml:"url"`
		ClientID string `yaml:"client_id"`
	} `yaml:"nats"`

	Redis struct {
		URL     string `yaml:"url"`
		Channel string `yaml:"channel"`
	} `yaml:"redis"`

	API struct {
		Port         string        `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		// 每个发送者每秒允许发送的消息数
		SendRPS   float64 `yaml:"send_rps"`
		SendBurst int     `yaml:"send_burst"`
	} `yaml:"api"`

	LLM struct {
		APIURL      string        `yaml:"api_url"`
		APIKey      string        `yaml:"api_key"`
		ModelName   string        `yaml:"model_name"`
		Temperature *float64      `yaml:"temperature"` // 未配置时为 0.1，允许显式配置 0
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"llm"`

	Notification struct {
		// local: 进程内渠道; http: 调用远端通知引擎函数
		EngineMode string `yaml:"engine_mode"`
		EngineURL  string `yaml:"engine_url"`
		EngineKey  string `yaml:"engine_key"`

		EmailFunctionURL string `yaml:"email_function_url"`
		EmailFunctionKey string `yaml:"email_function_key"`

		Resend struct {
			BaseURL string `yaml:"base_url"`
			APIKey  string `yaml:"api_key"`
			From    string `yaml:"from"`
		} `yaml:"resend"`

		Twilio struct {
			BaseURL    string `yaml:"base_url"`
			AccountSID string `yaml:"account_sid"`
			AuthToken  string `yaml:"auth_token"`
			From       string `yaml:"from"`
		} `yaml:"twilio"`

		ChannelRPS float64       `yaml:"channel_rps"`
		Timeout    time.Duration `yaml:"timeout"`
	} `yaml:"notification"`

	Dispatcher struct {
		Consumer   string `yaml:"consumer"`
		HealthPort string `yaml:"health_port"`
	} `yaml:"dispatcher"`

	Classifier struct {
		Consumer   string `yaml:"consumer"`
		HealthPort string `yaml:"health_port"`
	} `yaml:"classifier"`

	Monitor struct {
		Port     string        `yaml:"port"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"monitor"`

	Scheduler struct {
		SweepSpec      string        `yaml:"sweep_spec"`
		StaleThreshold time.Duration `yaml:"stale_threshold"`
	} `yaml:"scheduler"`

	Log struct {
		Mode     string `yaml:"mode"`
		Encoding string `yaml:"encoding"`
		Level    string `yaml:"level"`
		Path     string `yaml:"path"`
	} `yaml:"log"`
}

// LoadConfig 从文件加载配置
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	return Parse(data)
}

// Parse 解析YAML配置，并应用环境变量覆盖和默认值
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	overrideFromEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

const (
	defaultTemperature = 0.1
	writeTimeoutMargin = 15 * time.Second
)

// LLMTemperature 返回生效的采样温度
func (c *Config) LLMTemperature() float64 {
	if c.LLM.Temperature == nil {
		return defaultTemperature
	}
	return *c.LLM.Temperature
}

// applyDefaults 填充未配置的默认值
func applyDefaults(config *Config) {
	if config.App.Name == "" {
		config.App.Name = "credentialdesk"
	}
	if config.API.Port == "" {
		config.API.Port = "8080"
	}
	if config.API.SendRPS <= 0 {
		config.API.SendRPS = 1
	}
	if config.API.SendBurst <= 0 {
		config.API.SendBurst = 5
	}
	if config.LLM.ModelName == "" {
		config.LLM.ModelName = "gpt-4o-mini"
	}
	if config.LLM.Temperature == nil {
		t := defaultTemperature
		config.LLM.Temperature = &t
	}
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 30 * time.Second
	}
	// 同步分类要在写超时之前返回
	if config.API.WriteTimeout != 0 && config.API.WriteTimeout <= config.LLM.Timeout {
		config.API.WriteTimeout = config.LLM.Timeout + writeTimeoutMargin
	}
	if config.Redis.Channel == "" {
		config.Redis.Channel = "realtime:messages"
	}
	if config.Notification.EngineMode == "" {
		config.Notification.EngineMode = "local"
	}
	if config.Notification.Resend.BaseURL == "" {
		config.Notification.Resend.BaseURL = "https://api.resend.com"
	}
	if config.Notification.Twilio.BaseURL == "" {
		config.Notification.Twilio.BaseURL = "https://api.twilio.com"
	}
	if config.Notification.ChannelRPS <= 0 {
		config.Notification.ChannelRPS = 10
	}
	if config.Notification.Timeout == 0 {
		config.Notification.Timeout = 30 * time.Second
	}
	if config.Dispatcher.Consumer == "" {
		config.Dispatcher.Consumer = "notification-dispatcher"
	}
	if config.Dispatcher.HealthPort == "" {
		config.Dispatcher.HealthPort = "8082"
	}
	if config.Classifier.Consumer == "" {
		config.Classifier.Consumer = "message-classifier"
	}
	if config.Classifier.HealthPort == "" {
		config.Classifier.HealthPort = "8083"
	}
	if config.Monitor.Port == "" {
		config.Monitor.Port = "8081"
	}
	if config.Monitor.Interval == 0 {
		config.Monitor.Interval = 30 * time.Second
	}
	if config.Scheduler.SweepSpec == "" {
		config.Scheduler.SweepSpec = "@every 5m"
	}
	if config.Scheduler.StaleThreshold == 0 {
		config.Scheduler.StaleThreshold = 15 * time.Minute
	}
	if config.Log.Mode == "" {
		config.Log.Mode = "console"
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
}

// overrideFromEnv 使用环境变量覆盖配置
func overrideFromEnv(config *Config) {
	setString(&config.App.Name, "APP_NAME")
	setString(&config.App.Env, "APP_ENV")

	// 数据库配置
	setString(&config.Database.Postgres.Host, "DB_HOST")
	if env := os.Getenv("DB_PORT"); env != "" {
		if port, err := strconv.Atoi(env); err == nil && port > 0 {
			config.Database.Postgres.Port = port
		}
	}
	setString(&config.Database.Postgres.User, "DB_USER")
	setString(&config.Database.Postgres.Password, "DB_PASSWORD")
	setString(&config.Database.Postgres.DBName, "DB_NAME")
	setString(&config.Database.Postgres.SSLMode, "DB_SSLMODE")

	// NATS / Redis
	setString(&config.NATS.URL, "NATS_URL")
	setString(&config.NATS.ClientID, "NATS_CLIENT_ID")
	setString(&config.Redis.URL, "REDIS_URL")

	// API配置
	setString(&config.API.Port, "API_PORT")

	// 大模型
	setString(&config.LLM.APIURL, "LLM_API_URL")
	setString(&config.LLM.APIKey, "OPENAI_API_KEY")
	setString(&config.LLM.ModelName, "LLM_MODEL")

	// 通知渠道
	setString(&config.Notification.EngineMode, "NOTIFICATION_ENGINE_MODE")
	setString(&config.Notification.EngineURL, "NOTIFICATION_ENGINE_URL")
	setString(&config.Notification.EngineKey, "NOTIFICATION_ENGINE_KEY")
	setString(&config.Notification.EmailFunctionURL, "EMAIL_FUNCTION_URL")
	setString(&config.Notification.EmailFunctionKey, "EMAIL_FUNCTION_KEY")
	setString(&config.Notification.Resend.APIKey, "RESEND_API_KEY")
	setString(&config.Notification.Resend.From, "RESEND_FROM")
	setString(&config.Notification.Twilio.AccountSID, "TWILIO_ACCOUNT_SID")
	setString(&config.Notification.Twilio.AuthToken, "TWILIO_AUTH_TOKEN")
	setString(&config.Notification.Twilio.From, "TWILIO_PHONE_NUMBER")

	setString(&config.Log.Level, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if env := os.Getenv(key); env != "" {
		*dst = env
	}
}

// GetDefaultConfigPath 获取默认配置文件路径
func GetDefaultConfigPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev" // 默认开发环境
	}

	return fmt.Sprintf("configs/%s/app.yaml", env)
}

// PostgresDSN 构建数据库连接字符串
func (c *Config) PostgresDSN() string {
	pg := c.Database.Postgres
	sslMode := pg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		pg.Host, pg.Port, pg.User, pg.Password, pg.DBName, sslMode,
	)
}
