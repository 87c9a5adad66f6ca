// Command server runs the demo relay: a websocket endpoint that
// forwards MicroRatchet frames between connected clients, queuing in
// redis for whichever side is offline. It never sees a plaintext
// payload or a private key — it only ever handles ciphertext.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/cilliemalan/microratchet-go/configs"
	"github.com/cilliemalan/microratchet-go/transportdemo"
)

func main() {
	logger := logrus.New()

	if err := configs.Load(".env"); err != nil {
		logger.WithError(err).Fatal("loading configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := redis.NewClient(&redis.Options{Addr: configs.RedisAddress})
	relay := transportdemo.NewRelay(ctx, redisClient, logger)
	defer relay.Close()

	router := mux.NewRouter()
	router.HandleFunc(configs.WebSocketPath, relay.HandleWebSocket)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
		os.Exit(0)
	}()

	logger.WithField("address", configs.ServerAddress).Info("relay listening")
	if err := http.ListenAndServe(configs.ServerAddress, router); err != nil {
		logger.WithError(err).Fatal("relay stopped")
	}
}
