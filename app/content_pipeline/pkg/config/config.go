package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 项目配置结构体
type Config struct {
	LLM         LLMConfig         `yaml:"llm"`
	Search      SearchConfig      `yaml:"search"`
	Retry       RetryConfig       `yaml:"retry"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Log         LogConfig         `yaml:"log"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	DB          DBConfig          `yaml:"db"`
	Redis       RedisConfig       `yaml:"redis"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// LLMConfig LLM 相关配置
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Timeout int    `yaml:"timeout"` // 单次调用超时（秒）
}

// SearchConfig 搜索相关配置
type SearchConfig struct {
	Provider string        `yaml:"provider"`
	SerpAPI  SerpAPIConfig `yaml:"serpapi"`
	Tavily   TavilyConfig  `yaml:"tavily"`
	SearXNG  SearXNGConfig `yaml:"searxng"`
}

// SerpAPIConfig SerpAPI 配置
type SerpAPIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Engine  string `yaml:"engine"`
	Num     int    `yaml:"num"`
	Timeout int    `yaml:"timeout"`
}

// TavilyConfig Tavily 配置
type TavilyConfig struct {
	APIKey string `yaml:"api_key"`
}

// SearXNGConfig SearXNG 配置
type SearXNGConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout int    `yaml:"timeout"`
}

// RetryConfig 上游调用重试配置
type RetryConfig struct {
	MaxAttempts   int  `yaml:"max_attempts"`
	WaitSeconds   int  `yaml:"wait_seconds"`
	Exponential   bool `yaml:"exponential"`
	RateLimitOnly bool `yaml:"rate_limit_only"` // 只对限流类错误重试
}

// Wait 返回两次尝试之间的等待时间
func (r RetryConfig) Wait() time.Duration {
	return time.Duration(r.WaitSeconds) * time.Second
}

// PipelineConfig 流水线行为配置
type PipelineConfig struct {
	OutputDir    string      `yaml:"output_dir"`
	MaxBlogCount int         `yaml:"max_blog_count"`
	Files        FilesConfig `yaml:"files"`
	Brand        BrandConfig `yaml:"brand"`
}

// FilesConfig 产物文件名
type FilesConfig struct {
	Briefs  string `yaml:"briefs"`
	Summary string `yaml:"summary"`
	Article string `yaml:"article"`
	Branded string `yaml:"branded"`
}

// BrandConfig 品牌调性评估配置
type BrandConfig struct {
	Voice       string `yaml:"voice"`
	Threshold   int    `yaml:"threshold"`
	MaxAttempts int    `yaml:"max_attempts"`
}

// LogConfig 日志相关配置
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ConcurrencyConfig 并发控制配置
type ConcurrencyConfig struct {
	QPS int `yaml:"qps"`
	RPM int `yaml:"rpm"`
}

// DBConfig 数据库相关配置，Host 为空时不启用
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// RedisConfig Redis 配置，Addr 为空时使用内存存储
type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	TTLMinutes int    `yaml:"ttl_minutes"`
}

// MetricsConfig 指标暴露配置
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultBrandVoice 默认品牌调性
const DefaultBrandVoice = `Warm, nurturing, informative
Target audience: Indian parents
No sales language
SEO-friendly but human`

// LoadConfig 从指定路径加载配置
// 加载前会读取当前目录下的 .env，配置中的 ${VAR} 会被环境变量替换。
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse 解析 YAML 配置内容并补齐默认值
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Search.Provider == "" {
		c.Search.Provider = "serpapi"
	}
	if c.Search.SerpAPI.Engine == "" {
		c.Search.SerpAPI.Engine = "google"
	}
	if c.Search.SerpAPI.Num == 0 {
		c.Search.SerpAPI.Num = 10
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 5
	}
	if c.Retry.WaitSeconds == 0 {
		c.Retry.WaitSeconds = 20
	}
	if c.Pipeline.OutputDir == "" {
		c.Pipeline.OutputDir = "agent_outputs"
	}
	if c.Pipeline.MaxBlogCount == 0 {
		c.Pipeline.MaxBlogCount = 10
	}
	if c.Pipeline.Files.Briefs == "" {
		c.Pipeline.Files.Briefs = "research_briefs.json"
	}
	if c.Pipeline.Files.Summary == "" {
		c.Pipeline.Files.Summary = "summary.json"
	}
	if c.Pipeline.Files.Article == "" {
		c.Pipeline.Files.Article = "article.md"
	}
	if c.Pipeline.Files.Branded == "" {
		c.Pipeline.Files.Branded = "article_branded.md"
	}
	if c.Pipeline.Brand.Voice == "" {
		c.Pipeline.Brand.Voice = DefaultBrandVoice
	}
	if c.Pipeline.Brand.Threshold == 0 {
		c.Pipeline.Brand.Threshold = 50
	}
	if c.Pipeline.Brand.MaxAttempts == 0 {
		c.Pipeline.Brand.MaxAttempts = 3
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Concurrency.QPS == 0 {
		c.Concurrency.QPS = 1
	}
	if c.Concurrency.RPM == 0 {
		c.Concurrency.RPM = 60
	}
	if c.Redis.TTLMinutes == 0 {
		c.Redis.TTLMinutes = 24 * 60
	}
}

// Validate 校验启动所需的必填项
func (c *Config) Validate() error {
	if c.LLM.Model == "" {
		return fmt.Errorf("配置错误: 未设置 llm.model")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("配置错误: 未设置 llm.api_key")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("配置错误: retry.max_attempts 必须 >= 1")
	}
	if c.Pipeline.Brand.Threshold < 0 || c.Pipeline.Brand.Threshold > 100 {
		return fmt.Errorf("配置错误: pipeline.brand.threshold 必须在 0-100 之间")
	}
	return nil
}
