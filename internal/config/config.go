package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Realtime  RealtimeConfig
	Companion CompanionConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	realtime, err := loadRealtimeConfig()
	if err != nil {
		return nil, err
	}

	companion, err := loadCompanionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Realtime: realtime, Companion: companion}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// Realtime 语音链路的默认值。
const (
	DefaultRealtimeBaseURL = "wss://api.openai.com/v1/realtime"
	DefaultRealtimeModel   = "gpt-4o-realtime-preview-2024-12-17"
	DefaultRealtimeVoice   = "alloy"

	defaultRealtimeInstructions = "You are a warm, patient mental-wellness companion for the Purify Our Mind app. " +
		"Listen carefully, acknowledge feelings, and answer in short, calm sentences. " +
		"Encourage healthy habits such as journaling, breathing exercises and regular sleep. " +
		"You are not a doctor: when a user describes a crisis or medical emergency, gently suggest professional help."
)

// RealtimeConfig 描述实时语音中继相关配置。
type RealtimeConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	Voice        string
	Instructions string

	// 服务端 VAD 参数
	VADThreshold         float64
	VADPrefixPaddingMS   int
	VADSilenceDurationMS int

	Temperature     float64
	MaxOutputTokens int

	// ReadyTimeout 限制等待上游 session.created 的时长，超时即断开。
	ReadyTimeout     time.Duration
	HandshakeTimeout time.Duration
}

// Enabled 表示是否提供了必需的上游密钥。
func (c RealtimeConfig) Enabled() bool {
	return c.APIKey != ""
}

// SessionURL 返回带模型参数的上游 WebSocket 地址。
func (c RealtimeConfig) SessionURL() string {
	return c.BaseURL + "?model=" + url.QueryEscape(c.Model)
}

func loadRealtimeConfig() (RealtimeConfig, error) {
	threshold, err := parseOptionalFloatEnv("REALTIME_VAD_THRESHOLD")
	if err != nil {
		return RealtimeConfig{}, err
	}
	vadThreshold := 0.5
	if threshold != nil {
		if *threshold < 0 || *threshold > 1 {
			return RealtimeConfig{}, fmt.Errorf("REALTIME_VAD_THRESHOLD must be between 0 and 1, got %v", *threshold)
		}
		vadThreshold = *threshold
	}

	prefixPadding, err := parseOptionalIntEnv("REALTIME_VAD_PREFIX_PADDING_MS")
	if err != nil {
		return RealtimeConfig{}, err
	}
	prefixPaddingMS := 300
	if prefixPadding != nil {
		prefixPaddingMS = *prefixPadding
	}

	silenceDuration, err := parseOptionalIntEnv("REALTIME_VAD_SILENCE_DURATION_MS")
	if err != nil {
		return RealtimeConfig{}, err
	}
	silenceDurationMS := 800
	if silenceDuration != nil {
		silenceDurationMS = *silenceDuration
	}

	temperature, err := parseOptionalFloatEnv("REALTIME_TEMPERATURE")
	if err != nil {
		return RealtimeConfig{}, err
	}
	temp := 0.8
	if temperature != nil {
		temp = *temperature
	}

	maxTokens, err := parseOptionalIntEnv("REALTIME_MAX_OUTPUT_TOKENS")
	if err != nil {
		return RealtimeConfig{}, err
	}
	maxOutputTokens := 4096
	if maxTokens != nil {
		maxOutputTokens = *maxTokens
	}

	readySeconds, err := parseOptionalIntEnv("REALTIME_READY_TIMEOUT")
	if err != nil {
		return RealtimeConfig{}, err
	}
	readyTimeout := 15 * time.Second
	if readySeconds != nil {
		readyTimeout = time.Duration(*readySeconds) * time.Second
	}

	return RealtimeConfig{
		APIKey:               strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		BaseURL:              getEnvOrDefault("REALTIME_BASE_URL", DefaultRealtimeBaseURL),
		Model:                getEnvOrDefault("REALTIME_MODEL", DefaultRealtimeModel),
		Voice:                getEnvOrDefault("REALTIME_VOICE", DefaultRealtimeVoice),
		Instructions:         getEnvOrDefault("REALTIME_INSTRUCTIONS", defaultRealtimeInstructions),
		VADThreshold:         vadThreshold,
		VADPrefixPaddingMS:   prefixPaddingMS,
		VADSilenceDurationMS: silenceDurationMS,
		Temperature:          temp,
		MaxOutputTokens:      maxOutputTokens,
		ReadyTimeout:         readyTimeout,
		HandshakeTimeout:     10 * time.Second,
	}, nil
}

const defaultCompanionPrompt = "You are the Purify Our Mind text companion. Reply briefly and kindly to the user's message, " +
	"offering encouragement and practical wellbeing suggestions. Do not give medical diagnoses."

// CompanionConfig 描述文字陪伴机器人使用的大模型配置。
type CompanionConfig struct {
	APIKey         string
	AccessKey      string
	SecretKey      string
	Model          string
	BaseURL        string
	Region         string
	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
	StreamResponse bool
	SystemPrompt   string
}

// Enabled 表示是否提供了必需的密钥。
func (c CompanionConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c CompanionConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadCompanionConfig() (CompanionConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return CompanionConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return CompanionConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return CompanionConfig{}, err
	}

	stream, err := parseBoolEnv("ARK_STREAM", true)
	if err != nil {
		return CompanionConfig{}, err
	}

	return CompanionConfig{
		APIKey:         strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:      strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:          strings.TrimSpace(os.Getenv("Model")),
		BaseURL:        getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:         getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:    temperature,
		TopP:           topP,
		MaxTokens:      maxTokens,
		StreamResponse: stream,
		SystemPrompt:   getEnvOrDefault("COMPANION_SYSTEM_PROMPT", defaultCompanionPrompt),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
