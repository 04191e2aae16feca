package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/codearena/realtime/internal/api"
	"github.com/codearena/realtime/internal/cache"
	"github.com/codearena/realtime/internal/config"
	"github.com/codearena/realtime/internal/database"
	"github.com/codearena/realtime/internal/server"
	"github.com/codearena/realtime/internal/stats"
)

// development fallback; override in any real deployment
const defaultSigningKey = "9hX1yKclBDEXmCSG4/+ufOSC9+KLBqLKkBctKywpMT0="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	signingKey     string
	redisAddr      string
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key")
	flag.StringVar(&redisAddr, "redis-addr", "", "redis address for the membership cache (optional)")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[realtime] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins, redisAddr)
	if err != nil {
		logger.Fatal("config:", err)
	}

	repo, err := database.NewPgRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	membership := server.MembershipSource(repo)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Fatal("redis ping:", err)
		}
		defer rdb.Close()

		membership = cache.NewRedisMembershipCache(rdb, repo, logger, cache.DefaultMembershipTTL)
		logger.Println("membership cache enabled")
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	verifier := api.NewCredentialVerifier(cfg.SigningKey, repo)

	realtimeServer, err := server.NewRealtimeServer(logger, repo, membership, verifier, statsUpdater)
	if err != nil {
		logger.Fatal("new realtime server:", err)
	}

	app := api.NewRealtimeApp(mux, logger, realtimeServer, repo, verifier, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go realtimeServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := app.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down realtime server...")
	if err := realtimeServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("realtime server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
