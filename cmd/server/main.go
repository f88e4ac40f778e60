// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/saltline/broadside/internal/auth"
	"github.com/saltline/broadside/internal/cache"
	"github.com/saltline/broadside/internal/channel"
	"github.com/saltline/broadside/internal/database"
	"github.com/saltline/broadside/internal/engine"
	"github.com/saltline/broadside/internal/handlers"
	"github.com/saltline/broadside/internal/middleware"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx := context.Background()

	if err := auth.Init(); err != nil {
		logger.Fatalf("failed to initialize auth keys: %v", err)
	}

	if err := database.ConnectDB(ctx); err != nil {
		logger.Fatalf("failed to connect to database: %v", err)
	}

	rdb, err := cache.Connect(ctx)
	if err != nil {
		logger.Fatalf("failed to connect to redis: %v", err)
	}
	store := cache.NewRedis(rdb)

	layer := channel.New(ctx, rdb, logger)

	srv := handlers.NewServer(logger, store, layer, engine.New())

	mux := http.NewServeMux()
	mux.HandleFunc("/user/create", handlers.CreateUserHandler(logger))
	mux.HandleFunc("/user/login", handlers.LoginHandler(logger))
	mux.HandleFunc("/ws/lobby/", handlers.LobbyWSHandler(logger, srv))
	mux.HandleFunc("/ws/game/", handlers.GameWSHandler(logger, srv))

	handler := middleware.LogMiddleware(logger)(mux)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logger.Infof("server listening on :%s", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		logger.Fatalf("server error: %v", err)
	}
}
