package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lumora-labs/chat-assistant/internal/api"
	"github.com/lumora-labs/chat-assistant/internal/config"
	"github.com/lumora-labs/chat-assistant/internal/core"
	"github.com/lumora-labs/chat-assistant/internal/store"
	"github.com/sashabaranov/go-openai"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.AppConfig.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	// Initialize the conversation session manager
	client := openai.NewClient(config.AppConfig.OpenAIAPIKey)

	var conv core.Conversationalist
	var indexer core.DocumentIndexer
	switch config.AppConfig.ChatMode {
	case "completion":
		log.Println("Chat mode: completion (windowed context, no document retrieval)")
		conv = core.NewCompletionService(client, dbStore, config.AppConfig.OpenAIModel)
	default:
		assistantService := core.NewAssistantService(client, dbStore, config.AppConfig.OpenAIModel)
		conv = assistantService
		indexer = assistantService
	}

	// Initialize upload pipeline
	uploadService, err := core.NewUploadService(dbStore, indexer, config.AppConfig.UploadDir)
	if err != nil {
		log.Fatalf("Failed to initialize upload service: %v", err)
	}

	// Initialize Chat service
	chatService := core.NewChatService(dbStore, conv)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(dbStore, chatService, uploadService)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 180 * time.Second, // run polling can hold a request for a while
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit // Block until a signal is received
	log.Println("Shutting down server...")

	// Give active connections time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
