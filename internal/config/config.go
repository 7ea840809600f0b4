package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Redis config
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// SQS ingestion transport
	SQSRegion   string
	SQSQueueURL string

	// SNS change mirror
	SNSRegion   string
	SNSTopicARN string

	// Display agent webhook
	DisplayWebhookURL string
	WebhookTimeout    int // Timeout for webhook requests in seconds

	// Message retention
	MaxMessages   int
	RetentionDays int
	PruneSchedule string

	// Click-through fallback target
	DefaultTargetURL string

	// Control surface rate limiting
	RateLimitEnabled bool
	RateLimit        int // requests per window
	RateLimitWindow  int // window in seconds

	// AWS Services
	AWSRegion string
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		// Redis defaults
		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		MaxMessages:   1000,
		RetentionDays: 30,
		PruneSchedule: "@every 24h",

		DefaultTargetURL: "http://localhost:8080",

		RateLimitEnabled: true,
		RateLimit:        100,
		RateLimitWindow:  60,

		AWSRegion: "us-east-1",
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	// SQS config
	if region := os.Getenv("SQS_REGION"); region != "" {
		cfg.SQSRegion = region
	} else {
		cfg.SQSRegion = cfg.AWSRegion
	}

	if url := os.Getenv("SQS_QUEUE_URL"); url != "" {
		cfg.SQSQueueURL = url
	}

	// SNS config
	if region := os.Getenv("SNS_REGION"); region != "" {
		cfg.SNSRegion = region
	} else {
		cfg.SNSRegion = cfg.AWSRegion
	}

	if arn := os.Getenv("SNS_TOPIC_ARN"); arn != "" {
		cfg.SNSTopicARN = arn
	}

	// Display webhook config
	if url := os.Getenv("DISPLAY_WEBHOOK_URL"); url != "" {
		cfg.DisplayWebhookURL = url
	}

	if timeout := os.Getenv("WEBHOOK_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid WEBHOOK_TIMEOUT: %w", err)
		}
		cfg.WebhookTimeout = t
	} else {
		cfg.WebhookTimeout = 30 // default 30 seconds
	}

	// Retention config
	if maxMsgs := os.Getenv("MAX_MESSAGES"); maxMsgs != "" {
		m, err := strconv.Atoi(maxMsgs)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_MESSAGES: %w", err)
		}
		if m <= 0 {
			return nil, fmt.Errorf("MAX_MESSAGES must be positive, got %d", m)
		}
		cfg.MaxMessages = m
	}

	if days := os.Getenv("RETENTION_DAYS"); days != "" {
		d, err := strconv.Atoi(days)
		if err != nil {
			return nil, fmt.Errorf("invalid RETENTION_DAYS: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("RETENTION_DAYS must be positive, got %d", d)
		}
		cfg.RetentionDays = d
	}

	if schedule := os.Getenv("PRUNE_SCHEDULE"); schedule != "" {
		cfg.PruneSchedule = schedule
	}

	if url := os.Getenv("DEFAULT_TARGET_URL"); url != "" {
		cfg.DefaultTargetURL = url
	}

	// Rate limit config
	if enabled := os.Getenv("RATE_LIMIT_ENABLED"); enabled != "" {
		b, err := strconv.ParseBool(enabled)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_ENABLED: %w", err)
		}
		cfg.RateLimitEnabled = b
	}

	if limit := os.Getenv("RATE_LIMIT"); limit != "" {
		l, err := strconv.Atoi(limit)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT: %w", err)
		}
		cfg.RateLimit = l
	}

	if window := os.Getenv("RATE_LIMIT_WINDOW"); window != "" {
		w, err := strconv.Atoi(window)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_WINDOW: %w", err)
		}
		cfg.RateLimitWindow = w
	}

	return cfg, nil
}
