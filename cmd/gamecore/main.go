package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	clientv3 "go.etcd.io/etcd/client/v3"
	"golang.org/x/sync/errgroup"

	"github.com/pda-labs/gamecore/internal/admin"
	"github.com/pda-labs/gamecore/internal/analytics"
	"github.com/pda-labs/gamecore/internal/auth"
	"github.com/pda-labs/gamecore/internal/game"
	"github.com/pda-labs/gamecore/internal/gateway"
	"github.com/pda-labs/gamecore/internal/liquidity"
	"github.com/pda-labs/gamecore/internal/referral"
	"github.com/pda-labs/gamecore/internal/token"
	"github.com/pda-labs/gamecore/pkg/ledger"
	"github.com/pda-labs/gamecore/pkg/messaging"
)

type Config struct {
	Port        string
	DatabaseURL string
	NATSUrl     string
	RedisAddr   string
	EtcdAddrs   string
	InfluxURL   string
	InfluxToken string
	InfluxOrg   string
	InfluxBckt  string
	JWTSecret   string
	DappKey     string

	Owner            string
	Operator         string
	OperationAddress string
	EngineAddress    string

	RateLimitMax    int
	RateLimitWindow time.Duration
	CacheTTL        time.Duration
	TokenTTL        time.Duration
}

func loadConfig() *Config {
	return &Config{
		Port:        getEnv("PORT", "8000"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		NATSUrl:     os.Getenv("NATS_URL"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		EtcdAddrs:   os.Getenv("ETCD_ENDPOINTS"),
		InfluxURL:   os.Getenv("INFLUX_URL"),
		InfluxToken: os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:   getEnv("INFLUX_ORG", "gamecore"),
		InfluxBckt:  getEnv("INFLUX_BUCKET", "gamecore"),
		JWTSecret:   getEnv("JWT_SECRET", "dev-secret"),
		DappKey:     getEnv("DAPP_KEY", "dev-dapp-key"),

		Owner:            getEnv("OWNER_ADDRESS", "owner"),
		Operator:         os.Getenv("OPERATOR_ADDRESS"),
		OperationAddress: os.Getenv("OPERATION_ADDRESS"),
		EngineAddress:    getEnv("ENGINE_ADDRESS", "game-engine"),

		RateLimitMax:    100,
		RateLimitWindow: time.Minute,
		CacheTTL:        2 * time.Second,
		TokenTTL:        24 * time.Hour,
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func main() {
	cfg := loadConfig()

	owner := ledger.Address(cfg.Owner)
	registry := admin.NewRegistry(owner)
	if cfg.Operator != "" {
		if err := registry.SetOperator(owner, ledger.Address(cfg.Operator)); err != nil {
			log.Fatalf("Failed to set operator: %v", err)
		}
	}
	if cfg.OperationAddress != "" {
		if err := registry.SetOperationAddress(owner, ledger.Address(cfg.OperationAddress)); err != nil {
			log.Fatalf("Failed to set operation address: %v", err)
		}
	}

	// Optional backends. Each one missing degrades to in-memory operation.

	var msgClient *messaging.Client
	if cfg.NATSUrl != "" {
		var err error
		msgClient, err = messaging.NewClient(cfg.NATSUrl, messaging.ClientOptions{
			Name:           "gamecore",
			ReconnectWait:  time.Second,
			MaxReconnects:  60,
			ConnectTimeout: 10 * time.Second,
		})
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer msgClient.Close()
	}

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		if err := db.Ping(); err != nil {
			log.Fatalf("Failed to ping database: %v", err)
		}
		defer db.Close()
	}

	var stats *analytics.Writer
	if cfg.InfluxURL != "" {
		stats = analytics.NewWriter(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBckt)
		defer stats.Close()
	}

	poolOpts := []liquidity.Option{liquidity.WithMessaging(msgClient)}
	if db != nil {
		poolOpts = append(poolOpts, liquidity.WithJournal(liquidity.NewJournal(db)))
	}
	if stats != nil {
		poolOpts = append(poolOpts, liquidity.WithStats(stats))
	}
	if cfg.EtcdAddrs != "" {
		etcd, err := clientv3.New(clientv3.Config{
			Endpoints:   strings.Split(cfg.EtcdAddrs, ","),
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			log.Fatalf("Failed to connect to etcd: %v", err)
		}
		defer etcd.Close()
		poolOpts = append(poolOpts, liquidity.WithCoordinator(liquidity.NewEtcdCoordinator(etcd)))
	}
	pool := liquidity.NewManager(registry, poolOpts...)

	referrals := referral.NewGateway(registry, referral.WithMessaging(msgClient))

	vault := token.NewVault()
	engineAddr := ledger.Address(cfg.EngineAddress)
	gameOpts := []game.Option{
		game.WithReferral(referrals),
		game.WithMessaging(msgClient),
	}
	if db != nil {
		gameOpts = append(gameOpts, game.WithArchive(game.NewArchive(db)))
	}
	if stats != nil {
		gameOpts = append(gameOpts, game.WithStats(stats))
	}
	games := game.NewEngine(engineAddr, registry, pool, vault, gameOpts...)

	// the engines act through the authorized-source gates
	if err := pool.AddAuthorizedContract(owner, engineAddr, ledger.SourceGame); err != nil {
		log.Fatalf("Failed to authorize game engine on pool: %v", err)
	}
	if err := referrals.AddAuthorizedContract(owner, engineAddr); err != nil {
		log.Fatalf("Failed to authorize game engine on referrals: %v", err)
	}

	var cache *gateway.SnapshotCache
	if cfg.RedisAddr != "" {
		cache = gateway.NewSnapshotCache(cfg.RedisAddr, cfg.CacheTTL)
		defer cache.Close()
	}

	tokens := auth.NewService(cfg.JWTSecret, cfg.TokenTTL)
	gw := gateway.New(gateway.Config{
		Port:            cfg.Port,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: cfg.RateLimitWindow,
		DappKey:         cfg.DappKey,
	}, games, pool, referrals, tokens, msgClient, cache)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw.StartFeed()
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      gw.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("gamecore starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return runLockScheduler(ctx, pool, registry)
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Println("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		if msgClient != nil {
			msgClient.Drain()
		}
		if stats != nil {
			stats.Flush()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("gamecore exited: %v", err)
	}
	log.Println("gamecore stopped")
}

// runLockScheduler fires the daily lock shortly before each day rollover so
// the closing day's accumulated inflow is what gets locked. The etcd
// coordinator inside LockDaily decides which replica wins; the losers see
// ErrAlreadyLocked, which is not a failure.
func runLockScheduler(ctx context.Context, pool *liquidity.Manager, registry *admin.Registry) error {
	for {
		next := nextLockTime(time.Now())
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Until(next)):
		}

		fireDailyLock(ctx, pool, registry)
	}
}

// nextLockTime returns one minute before the upcoming day rollover, or the
// one after that when now already sits inside the final minute.
func nextLockTime(now time.Time) time.Time {
	next := ledger.DayStart(ledger.DayFromTime(now) + 1).Add(-time.Minute)
	if !next.After(now) {
		next = next.Add(ledger.DaySeconds * time.Second)
	}
	return next
}

// fireDailyLock locks the current day's bucket as the configured operator.
// The operator is re-read on every tick so one configured at runtime takes
// effect without a restart.
func fireDailyLock(ctx context.Context, pool *liquidity.Manager, registry *admin.Registry) {
	operator := registry.Operator()
	if operator.IsZero() {
		log.Println("daily lock skipped: no operator configured")
		return
	}

	lockCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	locked, err := pool.LockDaily(lockCtx, operator)
	cancel()
	switch {
	case errors.Is(err, liquidity.ErrAlreadyLocked):
		log.Printf("daily lock: day %d already locked", pool.CurrentDay())
	case err != nil:
		log.Printf("daily lock failed: %v", err)
	default:
		log.Printf("daily lock: locked %s for day %d", locked, pool.CurrentDay())
	}
}
