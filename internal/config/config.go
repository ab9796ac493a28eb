package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	OpenAIAPIKey  string
	OpenAIModel   string
	DatabaseURL   string
	HTTPPort      string
	UploadDir     string
	ChatMode      string // "assistant" or "completion"
	SessionSecret string
	LogLevel      string
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		DatabaseURL:   getEnv("DATABASE_URL", "chat.db"),
		HTTPPort:      getEnv("HTTP_PORT", "8080"),
		UploadDir:     getEnv("UPLOAD_DIR", "static/uploads"),
		ChatMode:      getEnv("CHAT_MODE", "assistant"),
		SessionSecret: getEnv("SESSION_SECRET", ""),
		LogLevel:      getEnv("LOG_LEVEL", "INFO"),
	}

	if AppConfig.OpenAIAPIKey == "" {
		log.Fatal("OPENAI_API_KEY environment variable is required")
	}

	// Session tokens are only as good as this secret, so there is no default.
	if AppConfig.SessionSecret == "" {
		log.Fatal("SESSION_SECRET environment variable is required")
	}

	if AppConfig.ChatMode != "assistant" && AppConfig.ChatMode != "completion" {
		log.Fatalf("CHAT_MODE must be 'assistant' or 'completion', got %q", AppConfig.ChatMode)
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
