package main

import (
	"context"
	"log"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
	"github.com/joho/godotenv"

	"github.com/example/realtime-chatroom/modules/api"
	"github.com/example/realtime-chatroom/modules/auth"
	"github.com/example/realtime-chatroom/modules/chat"
	"github.com/example/realtime-chatroom/modules/relay"
	"github.com/example/realtime-chatroom/modules/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log.Println("=== Realtime Chatroom - Fiber + Topic Relay ===")

	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to load .env file: %v", err)
	}

	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	logger := app.Logger()
	relayConfig := relay.ConfigFromEnv()

	storeModule := store.NewModule()
	relayModule := relay.NewModule(relayConfig, logger.WithModule("relay"))
	chatModule := chat.NewModule(logger.WithModule("chat"))
	apiModule := api.NewModule(auth.NewJWTManager(auth.JWTConfigFromEnv()), logger.WithModule("api"))

	chatModule.SetStoreModule(storeModule)
	chatModule.SetRelayModule(relayModule)
	apiModule.SetChatModule(chatModule)
	apiModule.SetRelayModule(relayModule)

	// Order: dependencies first.
	// - store: SQLite persistence
	// - relay: topic pub/sub (memory, NATS or Redis)
	// - chat: domain service, publishes topic events
	// - api: REST API and /ws gateway
	app.Register(storeModule)
	app.Register(relayModule)
	app.Register(chatModule)
	app.Register(apiModule)

	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(relayConfig)

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(relayConfig relay.Config) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Printf("Relay backend: %s (codec %s)", relayConfig.Backend, relayConfig.Codec)
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%s/api/v1):", port)
	log.Println("  GET|POST        /rooms")
	log.Println("  GET|DELETE      /rooms/:id")
	log.Println("  GET|POST        /rooms/:id/messages")
	log.Println("  DELETE          /rooms/:id/messages/:messageId")
	log.Println("  GET             /rooms/:id/members")
	log.Println("  DELETE          /rooms/:id/members/me")
	log.Println("  GET|POST        /rooms/:id/bans, DELETE /rooms/:id/bans/:userId")
	log.Println("  GET|POST        /rooms/:id/invites, DELETE /rooms/:id/invites/:userId")
	log.Println("  GET|POST        /rooms/:id/invite-link")
	log.Println("  GET             /invites, POST /invites/:roomId/accept, DELETE /invites/:roomId")
	log.Println("  POST            /join/:token")
	log.Println("")
	log.Printf("Topic gateway: ws://localhost:%s/ws?token=<jwt>", port)
	log.Println("  Frames: {\"type\":\"subscribe\",\"topic\":\"room__<id>__new-message\"}")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
