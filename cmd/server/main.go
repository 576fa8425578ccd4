package main // Entry point package

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/leolab/lottery-engine/internal/config"
	"github.com/leolab/lottery-engine/internal/database"
	"github.com/leolab/lottery-engine/internal/handler"
	"github.com/leolab/lottery-engine/internal/logger"
	"github.com/leolab/lottery-engine/internal/lottery"
	"github.com/leolab/lottery-engine/internal/queue"
	"github.com/leolab/lottery-engine/internal/repository"
	"github.com/leolab/lottery-engine/internal/router"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments set the environment

	cfg := config.Load()
	lotCfg := config.LoadLotteryConfig()
	rlCfg := config.LoadRateLimitConfig()

	if err := logger.Init(cfg.Env); err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zap.L().Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		zap.L().Fatal("mysql connect failed", zap.Error(err))
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		// the engine's locks, nonces and counters all live in Redis
		zap.L().Fatal("redis connect failed")
	}
	defer rdb.Close()

	store := repository.NewStore(db)
	keys := lottery.NewKeyBuilder(lotCfg.Prefix)
	clock := lottery.SystemClock{}
	lock := lottery.NewLockManager(rdb)
	cache := lottery.NewCacheManager(rdb, lock, keys, clock, store, store)
	selector := lottery.NewWeightedSelector(lotCfg.NoPrizeWeight)
	strategy := lottery.NewPeakHoursStrategy(rdb, keys, clock, lotCfg.HotHours, lotCfg.PeakRatio, lotCfg.OffPeakRatio)
	stock := lottery.NewStockManager(rdb, keys, clock, store, store)
	fallback := lottery.NewFallbackProvider(lotCfg.FallbackPrizes)
	anticheat := lottery.NewAntiCheat(rdb, keys, clock, lotCfg.AntiCheatSecret, lotCfg.NonceTTL)
	stats := lottery.NewStatistics(rdb, keys, clock, store, lotCfg.EnableThanksStats)

	var encoder *lottery.DrawIDEncoder
	if lotCfg.EncoderEnabled {
		encoder = lottery.NewDrawIDEncoder(lotCfg.EncoderKey, lotCfg.EncoderMinLen)
	}

	svc := lottery.NewService(store, rdb, keys, clock, cache, lock, selector, strategy,
		stock, fallback, anticheat, stats, encoder, lottery.ServiceConfig{
			TestMode:      lotCfg.TestMode,
			RecordThanks:  lotCfg.RecordThanks,
			LockTTL:       lotCfg.LockTTL,
			PerfThreshold: lotCfg.PerfThreshold,
		})
	if pub := queue.NewPublisher(cfg.AMQPUrl); pub != nil {
		svc.AddObserver(pub)
	}

	e := echo.New()
	e.HideBanner = true
	router.Register(e, cfg, rlCfg, rdb,
		handler.NewLotteryHandler(svc),
		handler.NewAdminHandler(svc),
		handler.NewAuthHandler(cfg),
		handler.NewHealthHandler(db, rdb),
	)

	addr := ":" + cfg.Port
	zap.L().Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := e.Start(addr); err != nil {
		zap.L().Fatal("server stopped", zap.Error(err))
	}
}
