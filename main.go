package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cxykevin/mizar0/archive"
	"github.com/cxykevin/mizar0/config"
	"github.com/cxykevin/mizar0/credential"
	"github.com/cxykevin/mizar0/demo/loop"
	"github.com/cxykevin/mizar0/engine"
	"github.com/cxykevin/mizar0/log"
	"github.com/cxykevin/mizar0/mock/openai"
	"github.com/cxykevin/mizar0/product"
	"github.com/cxykevin/mizar0/storage"
)

func main() {
	config.Load()
	log.Load()
	defer log.Shutdown()
	defer log.SolvePanic()

	logger := log.New("main")
	logger.Info("mizar0 %s starting", product.Version)
	logger.Info("%s", product.HostSummary())

	// 读取环境变量 MIZAR0_WORKDIR
	if workdir := os.Getenv("MIZAR0_WORKDIR"); workdir != "" {
		// 设置工作目录
		os.Chdir(workdir)
	}

	// 调试用内置模拟服务器
	openai.Start()

	cfg := config.GlobalConfig

	dataPath := config.ExpandPath(cfg.Storage.DataPath)
	storageCfg := cfg.Storage
	storageCfg.DataPath = dataPath
	store, err := storage.New(storageCfg)
	if err != nil {
		logger.Error("storage init failed: %v", err)
		os.Exit(1)
	}
	registry := credential.NewRegistry(filepath.Join(dataPath, cfg.Storage.BlacklistFile))
	pool := credential.NewPool(store, registry, cfg.Engine.UnitPrice)
	if err := pool.Seed(cfg.Engine.ProviderKeys); err != nil {
		logger.Error("credential seed failed: %v", err)
		os.Exit(1)
	}

	arch := archive.NewStore(filepath.Join(dataPath, cfg.Storage.ArchiveDir))

	eng, err := engine.New(cfg.Engine, store, pool, arch)
	if err != nil {
		logger.Error("engine init failed: %v", err)
		os.Exit(1)
	}

	convID := os.Getenv("MIZAR0_CONVERSATION")
	if convID == "" {
		convID = "default"
	}
	userName := os.Getenv("MIZAR0_USERNAME")

	loop.Start(context.Background(), eng, store, convID, userName)
}
