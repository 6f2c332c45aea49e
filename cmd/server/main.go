package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"google.golang.org/grpc"

	"github.com/rl1809/guild-economy/internal/adapter/handler"
	"github.com/rl1809/guild-economy/internal/adapter/storage"
	"github.com/rl1809/guild-economy/internal/config"
	"github.com/rl1809/guild-economy/internal/core/service"
)

func main() {
	cfg := config.MustLoad()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize MySQL (accounts)
	db, err := connectDB(ctx, cfg.MySQL)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	log.Println("connected to mysql")

	// Initialize MongoDB (catalog)
	mc, err := connectMongo(ctx, cfg.Mongo)
	if err != nil {
		log.Fatalf("failed to connect mongo: %v", err)
	}
	log.Println("connected to mongo")

	// Initialize Redis (leases, leaderboard cache)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	log.Println("connected to redis")

	// Initialize adapters
	mongoAdapter := storage.NewMongoAdapter(mc.Database(cfg.Mongo.Database))
	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb)

	if err := mongoAdapter.EnsureIndexes(ctx); err != nil {
		log.Fatalf("failed to create indexes: %v", err)
	}
	if err := mysqlAdapter.EnsureSchema(ctx); err != nil {
		log.Fatalf("failed to create schema: %v", err)
	}

	// Initialize services
	trades := service.NewTradeService(mongoAdapter, mysqlAdapter)
	leaderboard := service.NewLeaderboardService(mysqlAdapter, redisAdapter, cfg.Economy.LeaderboardTTL, cfg.Economy.LeaderboardSize)
	browse := service.NewBrowseService(mongoAdapter, cfg.Economy.SessionIdleTimeout)
	pricing := service.NewPricingService(mongoAdapter, redisAdapter, cfg.Economy.RepriceInterval, cfg.Economy.RepriceWorkers)

	pricing.Start()

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterEconomyServer(grpcServer, handler.NewGRPCHandler(trades, leaderboard, browse))

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddress())
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	go func() {
		log.Printf("gRPC server listening on %s", cfg.Server.GRPCAddress())
		if err := grpcServer.Serve(lis); err != nil {
			log.Printf("gRPC server error: %v", err)
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(trades, leaderboard, browse)
	httpServer := &http.Server{
		Addr:         cfg.Server.HTTPAddress(),
		Handler:      httpHandler.Router(cfg.Server.CORSOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.Server.HTTPAddress())
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Println("HTTP server stopped")

	// Sessions first so open browse streams can finish
	browse.Close()
	log.Println("browsing sessions closed")

	grpcServer.GracefulStop()
	log.Println("gRPC server stopped")

	pricing.Close()
	log.Println("repricer stopped")

	rdb.Close()
	mc.Disconnect(shutdownCtx)
	db.Close()
	log.Println("connections closed")
}

func connectDB(ctx context.Context, cfg config.MySQLConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}

func connectMongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI).SetTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

func init() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
}
