package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"edutrack/internal/attendance"
	"edutrack/internal/config"
	"edutrack/internal/geo"
	"edutrack/internal/metrics"
	"edutrack/internal/queue"
	"edutrack/internal/session"
	"edutrack/internal/store"
)

// Worker consumes session-closed messages and marks absent every student of
// the session's year level with no record for that day.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "edutrack:sweeps")
	}

	sessionRepo := session.NewPostgres(db.Client)
	recorder := attendance.NewRecorder(attendance.NewPostgres(db.Client), sessionRepo, geo.DefaultRadiusMeters)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != queue.TypeSessionClosed {
			continue
		}

		id := string(msg.Body)
		log.Printf("sweeping session %s", id)

		sess, err := sessionRepo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				log.Printf("session %s vanished, skipping", id)
				continue
			}
			log.Printf("fetch session %s failed: %v", id, err)
			continue
		}

		n, err := recorder.SweepAbsent(ctx, sess)
		if err != nil {
			log.Printf("sweep for session %s failed after %d records: %v", id, n, err)
			continue
		}

		metrics.SweepCompleted()
		log.Printf("session %s swept: %d students marked absent", id, n)
	}

	log.Println("worker stopped")
}
