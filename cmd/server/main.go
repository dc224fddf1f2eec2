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

	"github.com/docstack/pdfchat/internal/api"
	"github.com/docstack/pdfchat/internal/chunker"
	"github.com/docstack/pdfchat/internal/config"
	"github.com/docstack/pdfchat/internal/core"
	"github.com/docstack/pdfchat/internal/extract"
	"github.com/docstack/pdfchat/internal/store"
	"github.com/docstack/pdfchat/internal/vectorstore"
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

	// Initialize LLM service
	llmService := core.NewLLMService()
	defer llmService.Close()

	// Initialize the document pipeline
	vectors := vectorstore.New(config.AppConfig.VectorDBPath)
	splitter := chunker.NewSplitter(config.AppConfig.ChunkSize, config.AppConfig.ChunkOverlap)
	indexer := core.NewIndexer(llmService, splitter, vectors)
	retriever := core.NewRetriever(llmService, llmService, vectors)
	composer := core.NewComposer(llmService)
	extractor := extract.NewExtractor()

	// Initialize Chat service
	chatService := core.NewChatService(dbStore, retriever, composer)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(dbStore, chatService, indexer, extractor, config.AppConfig.UploadDir)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second, // Adjusted for potentially slower LLM handshakes
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
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
