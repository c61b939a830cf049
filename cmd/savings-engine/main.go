package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	gcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/savings-engine/config"
	"github.com/spendsave/savings-engine/internal/dca"
	"github.com/spendsave/savings-engine/internal/ethtx"
	"github.com/spendsave/savings-engine/internal/gasoracle"
	"github.com/spendsave/savings-engine/internal/quote"
	"github.com/spendsave/savings-engine/internal/settlement"
	"github.com/spendsave/savings-engine/internal/signer"
	"github.com/spendsave/savings-engine/internal/strategy"
	"github.com/spendsave/savings-engine/internal/swap"
	"github.com/spendsave/savings-engine/internal/tasks"
	"github.com/spendsave/savings-engine/pkg/uniswap"
	"github.com/spendsave/savings-engine/service"
	"github.com/spendsave/savings-engine/storage"
	"github.com/spendsave/savings-engine/storage/postgres"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.GetConfigure()
	if err != nil {
		logger.Fatalf("fail to read config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	rpcClient, err := ethclient.Dial(cfg.Chain.RPCURL)
	if err != nil {
		return fmt.Errorf("fail to connect to RPC: %w", err)
	}
	defer rpcClient.Close()

	sdClient, err := statsd.New(cfg.Datadog.Host + ":" + cfg.Datadog.Port)
	if err != nil {
		logger.WithError(err).Warn("statsd unavailable, metrics disabled")
	}
	var metrics statsd.ClientInterface = &statsd.NoOpClient{}
	if sdClient != nil {
		metrics = sdClient
		defer sdClient.Close()
	}

	redisAddr := cfg.Redis.Host + ":" + cfg.Redis.Port
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Username: cfg.Redis.User,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	var db storage.DatabaseStorage
	if cfg.Database.DSN != "" {
		backend, err := postgres.NewPostgresBackend(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("fail to connect to database: %w", err)
		}
		defer backend.Close()
		db = backend
	}

	oracle := gasoracle.NewClient(gasoracle.Config{
		BaseURL:  cfg.Explorer.BaseURL,
		APIKey:   cfg.Explorer.APIKey,
		CacheTTL: cfg.Explorer.CacheTTL,
	}, rdb, logger)

	ucfg := uniswap.NewConfig(
		gcommon.HexToAddress(cfg.Contracts.UniversalRouter),
		gcommon.HexToAddress(cfg.Contracts.Quoter),
		gcommon.HexToAddress(cfg.Contracts.SavingsHook),
		gcommon.HexToAddress(cfg.Contracts.StrategyStore),
		cfg.Engine.SwapGasLimit,
		cfg.Engine.SlippagePct,
		cfg.Engine.Deadline,
	)

	uniClient, err := uniswap.NewClient(rpcClient, ucfg, logger)
	if err != nil {
		return fmt.Errorf("fail to build uniswap client: %w", err)
	}
	quoter, err := quote.NewService(uniClient, cfg.Engine.QuoteDebounce, logger)
	if err != nil {
		return fmt.Errorf("fail to build quote service: %w", err)
	}

	var sender *ethtx.Sender
	if cfg.Engine.SignerKey != "" {
		sgn, err := signer.NewLocalSigner(cfg.Engine.SignerKey)
		if err != nil {
			return fmt.Errorf("fail to load signer key: %w", err)
		}
		sender, err = ethtx.NewSender(rpcClient, sgn, big.NewInt(cfg.Chain.ChainID), logger)
		if err != nil {
			return fmt.Errorf("fail to build tx sender: %w", err)
		}
	}

	var dcaClient *dca.Client
	var dcaSender dca.TxSender
	if sender != nil {
		dcaSender = sender
	}
	if cfg.Contracts.DCAManager != "" {
		dcaClient, err = dca.NewClient(rpcClient, dcaSender, gcommon.HexToAddress(cfg.Contracts.DCAManager), logger)
		if err != nil {
			return fmt.Errorf("fail to build dca client: %w", err)
		}
	}

	reader, err := strategy.NewContractReader(rpcClient, ucfg.StrategyStore())
	if err != nil {
		return fmt.Errorf("fail to build strategy reader: %w", err)
	}
	var strategySender strategy.TxSender
	if sender != nil {
		strategySender = sender
	}
	var dcaEnabler strategy.DCAEnabler
	if dcaClient != nil {
		dcaEnabler = dcaClient
	}
	strategies, err := strategy.NewService(reader, strategySender, oracle, dcaEnabler, ucfg.StrategyStore(), logger)
	if err != nil {
		return fmt.Errorf("fail to build strategy service: %w", err)
	}

	settler, err := settlement.NewValidator(settlement.NewBackendWaiter(rpcClient), ucfg.Hook(), logger)
	if err != nil {
		return fmt.Errorf("fail to build settlement validator: %w", err)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     redisAddr,
		Username: cfg.Redis.User,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()

	var swapSender swap.TxSender
	if sender != nil {
		swapSender = sender
	}
	runner, err := swap.NewOrchestrator(ucfg, strategies, quoter, uniClient, rpcClient, oracle, swapSender, queueClient, settler, metrics, logger)
	if err != nil {
		return fmt.Errorf("fail to build swap orchestrator: %w", err)
	}

	var dcaReader service.DCAReader
	if dcaClient != nil {
		dcaReader = dcaClient
	}
	api, err := service.NewApiService(cfg, runner, quoter, strategies, oracle, dcaReader, db, metrics, logger)
	if err != nil {
		return fmt.Errorf("fail to build api service: %w", err)
	}

	var swapRepo storage.SwapRepository
	if db != nil {
		swapRepo = db
	}
	var dcaProcessor service.DCAProcessor
	if dcaClient != nil {
		dcaProcessor = dcaClient
	}
	worker, err := service.NewWorker(rpcClient, settler, dcaProcessor, swapRepo, metrics, logger)
	if err != nil {
		return fmt.Errorf("fail to build worker: %w", err)
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			tasks.QueueSettlement: 6,
			tasks.QueueDCA:        4,
		},
		Logger: logger,
	})
	mux := asynq.NewServeMux()
	worker.Register(mux)

	var scheduler *dca.Scheduler
	if dcaClient != nil && len(cfg.Engine.DCAWatchedUsers) > 0 {
		users := make([]gcommon.Address, 0, len(cfg.Engine.DCAWatchedUsers))
		for _, raw := range cfg.Engine.DCAWatchedUsers {
			if gcommon.IsHexAddress(raw) {
				users = append(users, gcommon.HexToAddress(raw))
			}
		}
		scheduler, err = dca.NewScheduler(dcaClient, queueClient, users, cfg.Engine.DCACronSpec, logger)
		if err != nil {
			return fmt.Errorf("fail to build dca scheduler: %w", err)
		}
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("fail to start dca scheduler: %w", err)
		}
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- api.Start()
	}()
	go func() {
		errCh <- srv.Run(mux)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("service exited")
		}
	}

	if scheduler != nil {
		scheduler.Stop()
	}
	srv.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return api.Shutdown(shutdownCtx)
}
