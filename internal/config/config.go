package config

import (
	"errors"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	Port           int
	JWTSecret      string
	AuthServiceURL string
	AllowedOrigins []string

	RedisURL    string
	DatabaseURL string

	StockfishPath    string
	AnalysisMode     string
	AnalysisDepth    int
	AnalysisTimeout  time.Duration
	AnalysisPoolSize int
	EngineThreads    int
	EngineHashMB     int

	MessagesDir string
}

const (
	AnalysisModeSpawn = "spawn"
	AnalysisModePool  = "pool"
)

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		Port:             8080,
		AllowedOrigins:   []string{"http://localhost:5173"},
		StockfishPath:    "stockfish",
		AnalysisMode:     AnalysisModeSpawn,
		AnalysisDepth:    15,
		AnalysisTimeout:  20 * time.Second,
		AnalysisPoolSize: defaultPoolSize(),
		EngineThreads:    1,
		EngineHashMB:     16,
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = strings.TrimSpace(os.Getenv("PORT_NO"))
	}
	if port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n <= 0 || n > 65535 {
			return nil, errors.New("PORT must be a valid TCP port")
		}
		cfg.Port = n
	}

	cfg.JWTSecret = strings.TrimSpace(os.Getenv("JWT_SECRET"))
	cfg.AuthServiceURL = strings.TrimSpace(os.Getenv("AUTH_SERVICE_URL"))

	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		var origins []string
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				origins = append(origins, s)
			}
		}
		if len(origins) > 0 {
			cfg.AllowedOrigins = origins
		}
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("STOCKFISH_PATH")); v != "" {
		cfg.StockfishPath = v
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("ANALYSIS_MODE"))); v != "" {
		if v != AnalysisModeSpawn && v != AnalysisModePool {
			return nil, errors.New("ANALYSIS_MODE must be spawn or pool")
		}
		cfg.AnalysisMode = v
	}
	if n, ok := positiveInt("ANALYSIS_DEPTH"); ok {
		cfg.AnalysisDepth = n
	}
	if n, ok := positiveInt("ANALYSIS_TIMEOUT_MS"); ok {
		cfg.AnalysisTimeout = time.Duration(n) * time.Millisecond
	}
	if n, ok := positiveInt("ANALYSIS_POOL_SIZE"); ok {
		cfg.AnalysisPoolSize = n
	}
	if n, ok := positiveInt("ENGINE_THREADS"); ok {
		cfg.EngineThreads = n
	}
	if n, ok := positiveInt("ENGINE_HASH_MB"); ok {
		cfg.EngineHashMB = n
	}

	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	return cfg, nil
}

// positiveInt ignores unset or malformed values so the default stays in effect.
func positiveInt(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func defaultPoolSize() int {
	cpu := runtime.NumCPU()
	if cpu < 2 {
		return 2
	}
	if cpu > 4 {
		return 4
	}
	return cpu
}
