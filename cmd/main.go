package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"github.com/open-onethingcloud/tc-contracts/internal/config"
	"github.com/open-onethingcloud/tc-contracts/internal/handlers"
	"github.com/open-onethingcloud/tc-contracts/internal/services"
	"github.com/open-onethingcloud/tc-contracts/internal/storage"
	"github.com/open-onethingcloud/tc-contracts/internal/storage/sqlite"
)

func main() {
	// 1. Load configuration from the environment
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	defer initLogging(cfg, os.Stdout).Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the store
	var store storage.Store
	if cfg.StoragePath != "" {
		store, err = sqlite.Open(ctx, cfg.StoragePath)
		if err != nil {
			logger.Fatalf("Failed to open store %s: %v", cfg.StoragePath, err)
		}
		logger.Infof("Using SQLite store at %s", cfg.StoragePath)
	} else {
		store = storage.NewMemoryStore()
		logger.Warningf("LOTTERY_STORAGE_PATH is empty, state will not survive a restart")
	}

	// 3. Pick the seed source
	var seeds services.SeedSource
	switch cfg.SeedMode {
	case config.SeedFixed:
		seeds = services.FixedSeed(cfg.Seed())
		logger.Warningf("Using a fixed seed, draws are predictable")
	case config.SeedChain:
		client, err := ethclient.DialContext(ctx, cfg.EthRPCURL)
		if err != nil {
			logger.Fatalf("Failed to dial %s: %v", cfg.EthRPCURL, err)
		}
		defer client.Close()
		seeds = services.BlockHashSeed{Client: client}
		logger.Infof("Seeding draws from block hashes at %s", cfg.EthRPCURL)
	default:
		seeds = services.CryptoSeed{}
	}

	// 4. Initialize the Lottery Service
	lotteryService, err := services.NewLotteryService(ctx, services.Options{
		Owner:     cfg.Owner(),
		Store:     store,
		SlotSpace: cfg.SlotSpace,
		Source:    services.NewKeccakSource(seeds, cfg.SlotSpace),
	})
	if err != nil {
		logger.Fatalf("Failed to start lottery service: %v", err)
	}
	defer lotteryService.Close()

	// 5. Set up the Gin router and register routes
	gin.SetMode(cfg.GinMode)
	r := gin.Default()
	handlers.NewHTTPHandler(lotteryService).RegisterRoutes(r)

	// 6. Run the server until interrupted
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
		// Event streams end with ctx.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		logger.Infof("Server starting on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to run server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown: %v", err)
	}
}

// initLogging sends info, warning and error logs to out. Verbose config adds
// per-draw detail logged at level 1.
func initLogging(cfg config.Config, out io.Writer) *logger.Logger {
	l := logger.Init("lottery", false, false, out)
	if cfg.LogVerbose {
		l.SetLevel(1)
	}
	return l
}
