// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// AppConfig 包含应用程序的所有配置
type AppConfig struct {
	// 基础配置
	Port      string `json:"port"`
	DataDir   string `json:"data_dir"`
	StaticDir string `json:"static_dir"`
	LogDir    string `json:"log_dir"`
	LogLevel  string `json:"log_level"`
	DebugMode bool   `json:"debug_mode"`
	SeedFile  string `json:"seed_file,omitempty"`

	// 生成服务相关配置
	GenAIProvider string            `json:"genai_provider"`
	GenAIConfig   map[string]string `json:"genai_config"`

	// 生成参数
	MaxBatchSize    int           `json:"max_batch_size"`
	VideoDelay      time.Duration `json:"video_delay"`
	FrameVideoDelay time.Duration `json:"frame_video_delay"`

	// 限流
	RateLimitPerMinute int `json:"rate_limit_per_minute"`

	// 日志轮转
	LogMaxSizeMB  int `json:"log_max_size_mb"`
	LogMaxBackups int `json:"log_max_backups"`
	LogMaxAgeDays int `json:"log_max_age_days"`
}

// Config 存储从环境变量读取的基础配置
type Config struct {
	Port               string
	GeminiAPIKey       string
	DataDir            string
	StaticDir          string
	LogDir             string
	LogLevel           string
	DebugMode          bool
	SeedFile           string
	MaxBatchSize       int
	VideoDelay         time.Duration
	FrameVideoDelay    time.Duration
	RateLimitPerMinute int
	LogMaxSizeMB       int
	LogMaxBackups      int
	LogMaxAgeDays      int
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	godotenv.Load()

	config := &Config{
		Port:               getEnv("PORT", "8080"),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", getEnv("API_KEY", "")),
		DataDir:            getEnvPath("DATA_DIR", "data"),
		StaticDir:          getEnv("STATIC_DIR", "static"),
		LogDir:             getEnvPath("LOG_DIR", "logs"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DebugMode:          getEnvBool("DEBUG_MODE", true),
		SeedFile:           getEnv("SEED_FILE", ""),
		MaxBatchSize:       getEnvInt("MAX_BATCH_SIZE", 0),
		VideoDelay:         getEnvDuration("VIDEO_DELAY", 3*time.Second),
		FrameVideoDelay:    getEnvDuration("FRAME_VIDEO_DELAY", 4*time.Second),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		LogMaxSizeMB:       getEnvInt("LOG_MAX_SIZE_MB", 50),
		LogMaxBackups:      getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays:      getEnvInt("LOG_MAX_AGE_DAYS", 14),
	}

	if config.GeminiAPIKey == "" {
		// 只记录警告，生成服务将以模拟模式运行
		log.Println("警告: 未设置GEMINI_API_KEY，生成与分析将使用模拟结果")
	}
	if config.MaxBatchSize < 0 {
		return nil, fmt.Errorf("MAX_BATCH_SIZE 不能为负数: %d", config.MaxBatchSize)
	}

	return config, nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，并确保目录存在
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			fmt.Printf("警告: 创建目录失败 %s: %v\n", path, err)
		}
	}

	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("警告: 环境变量 %s=%q 不是整数，使用默认值 %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("警告: 环境变量 %s=%q 不是合法时长，使用默认值 %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}

func fromBase(base *Config) *AppConfig {
	cfg := &AppConfig{
		GenAIProvider: "google",
		GenAIConfig:   map[string]string{"api_key": base.GeminiAPIKey},
	}
	applyBase(cfg, base)
	return cfg
}

// applyBase 环境变量中的基础配置总是覆盖文件中的值
func applyBase(cfg *AppConfig, base *Config) {
	cfg.Port = base.Port
	cfg.DataDir = base.DataDir
	cfg.StaticDir = base.StaticDir
	cfg.LogDir = base.LogDir
	cfg.LogLevel = base.LogLevel
	cfg.DebugMode = base.DebugMode
	cfg.SeedFile = base.SeedFile
	cfg.MaxBatchSize = base.MaxBatchSize
	cfg.VideoDelay = base.VideoDelay
	cfg.FrameVideoDelay = base.FrameVideoDelay
	cfg.RateLimitPerMinute = base.RateLimitPerMinute
	cfg.LogMaxSizeMB = base.LogMaxSizeMB
	cfg.LogMaxBackups = base.LogMaxBackups
	cfg.LogMaxAgeDays = base.LogMaxAgeDays
}

// InitConfig 初始化配置管理器
func InitConfig(dataDir string) error {
	configFile = filepath.Join(dataDir, "config.json")

	baseConfig, err := Load()
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	currentConfig = fromBase(baseConfig)

	// 尝试从文件加载已保存的生成服务设置
	if data, err := os.ReadFile(configFile); err == nil {
		var savedConfig AppConfig
		if json.Unmarshal(data, &savedConfig) == nil {
			applyBase(&savedConfig, baseConfig)
			if savedConfig.GenAIProvider == "" {
				savedConfig.GenAIProvider = currentConfig.GenAIProvider
			}
			if savedConfig.GenAIConfig == nil {
				savedConfig.GenAIConfig = map[string]string{}
			}
			// 如果文件中没有API密钥，使用环境变量的密钥
			if savedConfig.GenAIConfig["api_key"] == "" {
				savedConfig.GenAIConfig["api_key"] = baseConfig.GeminiAPIKey
			}
			currentConfig = &savedConfig
		}
	}

	return saveLocked()
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		baseConfig, err := Load()
		if err != nil {
			baseConfig = &Config{Port: "8080", VideoDelay: 3 * time.Second, FrameVideoDelay: 4 * time.Second}
		}
		return fromBase(baseConfig)
	}

	configCopy := *currentConfig
	configCopy.GenAIConfig = maps.Clone(currentConfig.GenAIConfig)
	return &configCopy
}

// HasCredentials 是否配置了生成服务的密钥
func (c *AppConfig) HasCredentials() bool {
	return c.GenAIProvider != "" && c.GenAIConfig != nil && c.GenAIConfig["api_key"] != ""
}

// UpdateGenAIConfig 更新生成服务配置
func UpdateGenAIConfig(provider string, config map[string]string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	currentConfig.GenAIProvider = provider
	currentConfig.GenAIConfig = maps.Clone(config)

	return saveLocked()
}

// SaveConfig 保存当前配置到文件
func SaveConfig() error {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return saveLocked()
}

func saveLocked() error {
	if currentConfig == nil {
		return fmt.Errorf("没有配置可保存")
	}

	dir := filepath.Dir(configFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	data, err := json.MarshalIndent(currentConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	return os.WriteFile(configFile, data, 0644)
}

// Reset 清空当前配置，仅用于测试
func Reset() {
	configMutex.Lock()
	defer configMutex.Unlock()
	currentConfig = nil
	configFile = ""
}
