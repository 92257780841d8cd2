package storage

import (
	cfgStructs "github.com/cxykevin/mizar0/config/structs"
)

// configStorage 测试用存储配置
func configStorage(backend string, dataPath string) cfgStructs.StorageConfig {
	cfg := cfgStructs.BuildDefault(cfgStructs.StorageConfig{})
	cfg.Backend = backend
	cfg.DataPath = dataPath
	return cfg
}
