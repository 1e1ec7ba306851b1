package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Data     DataConfig     `yaml:"data"`
	Logbook  LogbookConfig  `yaml:"logbook"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release
}

type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite, mysql
	DSN  string `yaml:"dsn"`
}

type LLMConfig struct {
	APIURL    string `yaml:"api_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

type DataConfig struct {
	Dir       string `yaml:"dir"`
	UploadDir string `yaml:"upload_dir"`
}

// LogbookConfig 新建记事本的默认抬头、历史长度与内存会话上限
type LogbookConfig struct {
	TeacherName        string        `yaml:"teacher_name"`
	ClassName          string        `yaml:"class_name"`
	HistoryLimit       int           `yaml:"history_limit"` // 0 表示不限制
	MaxUploadMB        int64         `yaml:"max_upload_mb"`
	MaxSessions        int           `yaml:"max_sessions"`         // 超出时淘汰最久未使用的会话
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"` // 空闲超时后丢弃会话，历史随之清空
}

var (
	cfg  *Config
	once sync.Once
)

func GetConfig() *Config {
	once.Do(func() {
		cfg = loadConfig()
	})
	return cfg
}

func loadConfig() *Config {
	config := &Config{
		Server: ServerConfig{
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			DSN:  "./data/app.db",
		},
		LLM: LLMConfig{
			APIURL:    "https://api.openai.com/v1",
			Model:     "gpt-4o",
			MaxTokens: 4096,
		},
		Data: DataConfig{
			Dir: "./data",
		},
		Logbook: LogbookConfig{
			TeacherName:  "Pr. Saad",
			ClassName:    "2ème Bac Scientifique",
			HistoryLimit:       200,
			MaxUploadMB:        20,
			MaxSessions:        100,
			SessionIdleTimeout: 30 * time.Minute,
		},
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err == nil {
		yaml.Unmarshal(data, config)
	}

	if port := os.Getenv("SERVER_PORT"); port != "" {
		config.Server.Port = port
	}
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		config.Server.Mode = mode
	}

	// 环境变量优先级高于配置文件
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.LLM.APIURL = baseURL
	}
	if model := os.Getenv("OPENAI_MODEL_NAME"); model != "" {
		config.LLM.Model = model
	}

	// 数据库环境变量
	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if dbDSN := os.Getenv("DB_DSN"); dbDSN != "" {
		config.Database.DSN = dbDSN
	}

	// 数据目录环境变量
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		config.Data.Dir = dataDir
	}
	if config.Data.UploadDir == "" {
		config.Data.UploadDir = filepath.Join(config.Data.Dir, "uploads")
	}

	if teacher := os.Getenv("LOGBOOK_TEACHER_NAME"); teacher != "" {
		config.Logbook.TeacherName = teacher
	}
	if class := os.Getenv("LOGBOOK_CLASS_NAME"); class != "" {
		config.Logbook.ClassName = class
	}
	if limit, err := strconv.Atoi(os.Getenv("HISTORY_LIMIT")); err == nil && limit >= 0 {
		config.Logbook.HistoryLimit = limit
	}
	if sessions, err := strconv.Atoi(os.Getenv("MAX_SESSIONS")); err == nil && sessions > 0 {
		config.Logbook.MaxSessions = sessions
	}
	if idle, err := time.ParseDuration(os.Getenv("SESSION_IDLE_TIMEOUT")); err == nil && idle > 0 {
		config.Logbook.SessionIdleTimeout = idle
	}

	return config
}
