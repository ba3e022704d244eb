package cfg

import (
	"fmt"
	"strings"
	"time"

	"github.com/DRSN-tech/kaspi-conveyor/pkg/e"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
	"github.com/jimlawless/whereami"
	"github.com/spf13/viper"
)

type Config struct {
	Log     *LogCfg
	Http    *HTTPConfig
	Db      *PGDBCfg
	Redis   *RedisCfg
	Kafka   *KafkaCfg
	Feed    *FeedCfg
	Pricing *PricingCfg
	ERP     *ERPCfg
	AI      *AICfg
	Scripts *ScriptsCfg
	Worker  *WorkerCfg
}

type LogCfg struct {
	Level  string
	Format string
	Output string
}

type HTTPConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PGDBCfg struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

type RedisCfg struct {
	Enabled     bool
	Addr        string
	Password    string
	User        string
	DB          int
	MaxRetries  int
	DialTimeout time.Duration
	Timeout     time.Duration
	FeedTTL     time.Duration // время жизни закэшированного фида
}

type KafkaCfg struct {
	Enabled      bool
	Topic        string
	Brokers      []string
	WriteTimeout time.Duration
}

// FeedCfg описывает источник базового каталога и конверт итогового XML.
type FeedCfg struct {
	BaseCatalogURL string
	FetchTimeout   time.Duration
	CacheControl   string
}

// PricingCfg — значения по умолчанию для runtime-настроек (см. internal/settings).
type PricingCfg struct {
	RetailDivisor     float64
	MinOfferPrice     int64
	CommissionPercent float64
	TaxPercent        float64
	LogisticsCost     int64
	StoreID           string
	MerchantID        string
	CompanyName       string
	DefaultStock      int
	SKUOrder          string
	DefaultCategory   string
}

type ERPCfg struct {
	BaseURL    string
	Token      string
	PageSize   int
	RPS        float64
	MaxRetries int
	Timeout    time.Duration
}

// AIProviderCfg описывает OpenAI-совместимый провайдер подсказок.
type AIProviderCfg struct {
	Name    string
	BaseURL string
	APIKey  string
	Model   string
}

type AICfg struct {
	Providers       []AIProviderCfg // в порядке приоритета
	ProviderTimeout time.Duration
}

type ScriptsCfg struct {
	Interpreter    string
	Dir            string
	Timeout        time.Duration
	LegacySentinel bool
	DiscoverScript string
	ERPCreate      string
	ERPStock       string
	KaspiCreate    string
}

type WorkerCfg struct {
	PollInterval      time.Duration
	ModerationAutoFix bool
	ModerationBatch   int
	SettingsRefresh   time.Duration // как часто воркер перечитывает runtime-настройки
	MetricsPort       string        // порт /metrics процесса воркера
}

// Load безопасно загружает конфигурацию и возвращает ошибку в случае неудачи.
// Значения читаются из переменных окружения; если задан CONFIG_FILE, он читается первым.
func Load(log logger.Logger) (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		log.Infof("config file loaded: %s", file)
	}

	setDefaults(v)

	db, err := loadPGDBCfg(v)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	http, err := loadHTTPConfig(v)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	redis, err := loadRedisCfg(v)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	kafka, err := loadKafkaCfg(v)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	pricing, err := loadPricingCfg(v)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return &Config{
		Log:     loadLogCfg(v),
		Http:    http,
		Db:      db,
		Redis:   redis,
		Kafka:   kafka,
		Feed:    loadFeedCfg(v),
		Pricing: pricing,
		ERP:     loadERPCfg(v),
		AI:      loadAICfg(v),
		Scripts: loadScriptsCfg(v),
		Worker:  loadWorkerCfg(v),
	}, nil
}

func setDefaults(v *viper.Viper) {
	defaults := map[string]any{
		"LOG_LEVEL":  "info",
		"LOG_FORMAT": "json",
		"LOG_OUTPUT": "stdout",

		"HTTP_PORT":          "8080",
		"HTTP_READ_TIMEOUT":  5 * time.Second,
		"HTTP_WRITE_TIMEOUT": 60 * time.Second,
		"KEEP_ALIVE":         60 * time.Second,

		"POSTGRES_HOST":      "localhost",
		"POSTGRES_PORT":      "5432",
		"SSL_MODE":           "disable",
		"POSTGRES_MAX_CONNS": 10,

		"REDIS_ENABLED":  false,
		"REDIS_ADDR":     "localhost:6379",
		"REDIS_DB_ID":    0,
		"MAX_RETRIES":    3,
		"DIAL_TIMEOUT":   5 * time.Second,
		"READ_TIMEOUT":   3 * time.Second,
		"WRITE_TIMEOUT":  3 * time.Second,
		"FEED_CACHE_TTL": time.Hour,

		"KAFKA_ENABLED":       false,
		"KAFKA_TOPIC":         "conveyor-events",
		"KAFKA_WRITE_TIMEOUT": 10 * time.Second,

		"FEED_FETCH_TIMEOUT": 30 * time.Second,
		"FEED_CACHE_CONTROL": "public, max-age=3600",

		"PRICE_RETAIL_DIVISOR":     0.3,
		"PRICE_MIN_OFFER":          500,
		"PRICE_COMMISSION_PERCENT": 12.0,
		"PRICE_TAX_PERCENT":        4.0,
		"PRICE_LOGISTICS_COST":     0,
		"FEED_STORE_ID":            "PP1",
		"FEED_MERCHANT_ID":         "",
		"FEED_COMPANY_NAME":        "",
		"FEED_DEFAULT_STOCK":       0,
		"FEED_SKU_ORDER":           "explicit_first",
		"FEED_DEFAULT_CATEGORY":    "",

		"ERP_BASE_URL":    "https://api.moysklad.ru/api/remap/1.2",
		"ERP_PAGE_SIZE":   1000,
		"ERP_RPS":         5.0,
		"ERP_MAX_RETRIES": 3,
		"ERP_TIMEOUT":     30 * time.Second,

		"AI_PROVIDER_ORDER":   "groq,openai,gemini",
		"AI_PROVIDER_TIMEOUT": 25 * time.Second,
		"GROQ_BASE_URL":       "https://api.groq.com/openai/v1",
		"GROQ_MODEL":          "llama-3.3-70b-versatile",
		"OPENAI_BASE_URL":     "https://api.openai.com/v1",
		"OPENAI_MODEL":        "gpt-4o-mini",
		"GEMINI_BASE_URL":     "https://generativelanguage.googleapis.com/v1beta/openai",
		"GEMINI_MODEL":        "gemini-2.0-flash",

		"SCRIPTS_INTERPRETER":     "python3",
		"SCRIPTS_DIR":             "scripts",
		"SCRIPTS_TIMEOUT":         5 * time.Minute,
		"SCRIPTS_LEGACY_SENTINEL": false,
		"SCRIPT_DISCOVER":         "discover.py",
		"SCRIPT_ERP_CREATE":       "ms_create.py",
		"SCRIPT_ERP_STOCK":        "ms_stock.py",
		"SCRIPT_KASPI_CREATE":     "kaspi_create.py",

		"WORKER_POLL_INTERVAL":      5 * time.Second,
		"WORKER_MODERATION_AUTOFIX": false,
		"WORKER_MODERATION_BATCH":   10,
		"WORKER_SETTINGS_REFRESH":   time.Minute,
		"WORKER_METRICS_PORT":       "9091",
	}

	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

func loadLogCfg(v *viper.Viper) *LogCfg {
	return &LogCfg{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
		Output: v.GetString("LOG_OUTPUT"),
	}
}

func loadHTTPConfig(v *viper.Viper) (*HTTPConfig, error) {
	cfg := &HTTPConfig{
		Port:         v.GetString("HTTP_PORT"),
		ReadTimeout:  v.GetDuration("HTTP_READ_TIMEOUT"),
		WriteTimeout: v.GetDuration("HTTP_WRITE_TIMEOUT"),
		IdleTimeout:  v.GetDuration("KEEP_ALIVE"),
	}

	if cfg.ReadTimeout <= 0 || cfg.WriteTimeout <= 0 {
		return nil, e.Wrap("HTTP_READ_TIMEOUT/HTTP_WRITE_TIMEOUT", e.ErrIncorrectEnvVariable)
	}

	return cfg, nil
}

func loadPGDBCfg(v *viper.Viper) (*PGDBCfg, error) {
	required := []string{"POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB"}
	for _, key := range required {
		if v.GetString(key) == "" {
			return nil, fmt.Errorf("%s is required", key)
		}
	}

	return &PGDBCfg{
		Host:     v.GetString("POSTGRES_HOST"),
		Port:     v.GetString("POSTGRES_PORT"),
		User:     v.GetString("POSTGRES_USER"),
		Password: v.GetString("POSTGRES_PASSWORD"),
		DBName:   v.GetString("POSTGRES_DB"),
		SSLMode:  v.GetString("SSL_MODE"),
		MaxConns: v.GetInt32("POSTGRES_MAX_CONNS"),
	}, nil
}

func loadRedisCfg(v *viper.Viper) (*RedisCfg, error) {
	timeout := v.GetDuration("READ_TIMEOUT")
	if w := v.GetDuration("WRITE_TIMEOUT"); w > timeout {
		timeout = w
	}

	feedTTL := v.GetDuration("FEED_CACHE_TTL")
	if feedTTL <= 0 {
		return nil, e.Wrap("FEED_CACHE_TTL", e.ErrIncorrectEnvVariable)
	}

	return &RedisCfg{
		Enabled:     v.GetBool("REDIS_ENABLED"),
		Addr:        v.GetString("REDIS_ADDR"),
		Password:    v.GetString("REDIS_PASSWORD"),
		User:        v.GetString("REDIS_USER"),
		DB:          v.GetInt("REDIS_DB_ID"),
		MaxRetries:  v.GetInt("MAX_RETRIES"),
		DialTimeout: v.GetDuration("DIAL_TIMEOUT"),
		Timeout:     timeout,
		FeedTTL:     feedTTL,
	}, nil
}

func loadKafkaCfg(v *viper.Viper) (*KafkaCfg, error) {
	enabled := v.GetBool("KAFKA_ENABLED")
	brokers := splitList(v.GetString("KAFKA_BROKERS"))

	if enabled && len(brokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS environment variable is required when KAFKA_ENABLED=true")
	}

	return &KafkaCfg{
		Enabled:      enabled,
		Topic:        v.GetString("KAFKA_TOPIC"),
		Brokers:      brokers,
		WriteTimeout: v.GetDuration("KAFKA_WRITE_TIMEOUT"),
	}, nil
}

func loadFeedCfg(v *viper.Viper) *FeedCfg {
	return &FeedCfg{
		BaseCatalogURL: v.GetString("FEED_BASE_CATALOG_URL"),
		FetchTimeout:   v.GetDuration("FEED_FETCH_TIMEOUT"),
		CacheControl:   v.GetString("FEED_CACHE_CONTROL"),
	}
}

func loadPricingCfg(v *viper.Viper) (*PricingCfg, error) {
	cfg := &PricingCfg{
		RetailDivisor:     v.GetFloat64("PRICE_RETAIL_DIVISOR"),
		MinOfferPrice:     v.GetInt64("PRICE_MIN_OFFER"),
		CommissionPercent: v.GetFloat64("PRICE_COMMISSION_PERCENT"),
		TaxPercent:        v.GetFloat64("PRICE_TAX_PERCENT"),
		LogisticsCost:     v.GetInt64("PRICE_LOGISTICS_COST"),
		StoreID:           v.GetString("FEED_STORE_ID"),
		MerchantID:        v.GetString("FEED_MERCHANT_ID"),
		CompanyName:       v.GetString("FEED_COMPANY_NAME"),
		DefaultStock:      v.GetInt("FEED_DEFAULT_STOCK"),
		SKUOrder:          v.GetString("FEED_SKU_ORDER"),
		DefaultCategory:   v.GetString("FEED_DEFAULT_CATEGORY"),
	}

	if cfg.RetailDivisor <= 0 {
		return nil, e.Wrap("PRICE_RETAIL_DIVISOR", e.ErrIncorrectEnvVariable)
	}

	return cfg, nil
}

func loadERPCfg(v *viper.Viper) *ERPCfg {
	return &ERPCfg{
		BaseURL:    strings.TrimRight(v.GetString("ERP_BASE_URL"), "/"),
		Token:      v.GetString("ERP_TOKEN"),
		PageSize:   v.GetInt("ERP_PAGE_SIZE"),
		RPS:        v.GetFloat64("ERP_RPS"),
		MaxRetries: v.GetInt("ERP_MAX_RETRIES"),
		Timeout:    v.GetDuration("ERP_TIMEOUT"),
	}
}

// loadAICfg собирает провайдеров в порядке AI_PROVIDER_ORDER. Провайдер без ключа пропускается.
func loadAICfg(v *viper.Viper) *AICfg {
	var providers []AIProviderCfg
	for _, name := range splitList(v.GetString("AI_PROVIDER_ORDER")) {
		prefix := strings.ToUpper(name)
		key := v.GetString(prefix + "_API_KEY")
		if key == "" {
			continue
		}

		providers = append(providers, AIProviderCfg{
			Name:    strings.ToLower(name),
			BaseURL: strings.TrimRight(v.GetString(prefix+"_BASE_URL"), "/"),
			APIKey:  key,
			Model:   v.GetString(prefix + "_MODEL"),
		})
	}

	return &AICfg{
		Providers:       providers,
		ProviderTimeout: v.GetDuration("AI_PROVIDER_TIMEOUT"),
	}
}

func loadScriptsCfg(v *viper.Viper) *ScriptsCfg {
	return &ScriptsCfg{
		Interpreter:    v.GetString("SCRIPTS_INTERPRETER"),
		Dir:            v.GetString("SCRIPTS_DIR"),
		Timeout:        v.GetDuration("SCRIPTS_TIMEOUT"),
		LegacySentinel: v.GetBool("SCRIPTS_LEGACY_SENTINEL"),
		DiscoverScript: v.GetString("SCRIPT_DISCOVER"),
		ERPCreate:      v.GetString("SCRIPT_ERP_CREATE"),
		ERPStock:       v.GetString("SCRIPT_ERP_STOCK"),
		KaspiCreate:    v.GetString("SCRIPT_KASPI_CREATE"),
	}
}

func loadWorkerCfg(v *viper.Viper) *WorkerCfg {
	return &WorkerCfg{
		PollInterval:      v.GetDuration("WORKER_POLL_INTERVAL"),
		ModerationAutoFix: v.GetBool("WORKER_MODERATION_AUTOFIX"),
		ModerationBatch:   v.GetInt("WORKER_MODERATION_BATCH"),
		SettingsRefresh:   v.GetDuration("WORKER_SETTINGS_REFRESH"),
		MetricsPort:       v.GetString("WORKER_METRICS_PORT"),
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
