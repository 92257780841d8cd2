package engine

import (
	"testing"
	"time"

	"github.com/cxykevin/mizar0/archive"
	cfgStructs "github.com/cxykevin/mizar0/config/structs"
	"github.com/cxykevin/mizar0/credential"
	"github.com/cxykevin/mizar0/storage"
)

// testRig 测试夹具：内存sqlite + 临时归档目录 + 记录延时的引擎
type testRig struct {
	store    storage.Store
	registry *credential.Registry
	pool     *credential.Pool
	archive  *archive.Store
	engine   *Engine
	delays   []time.Duration
}

func newRig(t *testing.T, mutate func(*cfgStructs.EngineConfig), opts ...Option) *testRig {
	t.Helper()
	cfg := cfgStructs.BuildDefault(cfgStructs.EngineConfig{})
	cfg.EnableStream = false
	if mutate != nil {
		mutate(&cfg)
	}

	store, err := storage.NewSQLite(t.TempDir(), ":memory:", 30)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	rig := &testRig{
		store:    store,
		registry: credential.NewRegistry(""),
		archive:  archive.NewStore(t.TempDir()),
	}
	rig.pool = credential.NewPool(store, rig.registry, cfg.UnitPrice)
	if err := rig.pool.Seed(cfg.ProviderKeys); err != nil {
		t.Fatalf("seed credentials: %v", err)
	}

	opts = append([]Option{WithSleep(func(d time.Duration) {
		rig.delays = append(rig.delays, d)
	})}, opts...)
	eng, err := New(cfg, store, rig.pool, rig.archive, opts...)
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	rig.engine = eng
	return rig
}
