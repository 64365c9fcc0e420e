package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MakaremHind/human-in-loop-warehouse/config"
	"github.com/MakaremHind/human-in-loop-warehouse/engine"
	"github.com/MakaremHind/human-in-loop-warehouse/messaging"
	"github.com/MakaremHind/human-in-loop-warehouse/snapshot"
	"github.com/MakaremHind/human-in-loop-warehouse/store"
	"github.com/MakaremHind/human-in-loop-warehouse/www"
)

var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "warebus.yaml", "path to config file")
	flag.Parse()

	if *showVersion {
		fmt.Println("warebus", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Database (order journal + console accounts)
	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	log.Printf("warebus: database open (%s)", cfg.Database.Driver)

	// Snapshot store with optional Redis mirror
	snap := snapshot.New()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Printf("warebus: redis not available (%v), running without mirror", err)
	} else {
		log.Printf("warebus: redis connected (%s)", cfg.Redis.Address)
		mirror := snapshot.NewRedisMirror(redisClient)
		if seeded, err := mirror.Load(pingCtx); err != nil {
			log.Printf("warebus: mirror warm start: %v", err)
		} else if len(seeded) > 0 {
			snap.LoadRaw(seeded)
			log.Printf("warebus: warm-started %d snapshot topics from redis", len(seeded))
		}
		mirror.Start()
		defer mirror.Stop()
		snap.SetMirror(mirror)
	}
	cancel()

	// Bus client
	msgClient := messaging.NewClient(&cfg.Messaging)
	if err := msgClient.Connect(); err != nil {
		log.Printf("warebus: bus connect failed (%v)", err)
	} else {
		log.Printf("warebus: bus client up (%s)", cfg.Messaging.Backend)
	}
	defer msgClient.Close()

	// Engine (listener + order correlation + journal wiring)
	eng := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: *configPath,
		DB:         db,
		Snapshot:   snap,
		MsgClient:  msgClient,
		Debug:      cfg.Debug,
	})
	eng.Start()
	defer eng.Stop()

	// Web server
	handler, stopWeb := www.NewRouter(eng)

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		log.Printf("warebus: web server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("web server: %v", err)
		}
	}()

	log.Printf("warebus: ready")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("warebus: shutting down...")
	stopWeb()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	log.Printf("warebus: stopped")
}
