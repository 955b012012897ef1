package internal

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/depositledger/config"
	"github.com/vadiminshakov/depositledger/internal/storage"
	"github.com/vadiminshakov/depositledger/internal/storage/memory"
	"github.com/vadiminshakov/depositledger/internal/storage/sqlite"
	"github.com/vadiminshakov/depositledger/internal/storage/walstore"
)

// NewStore opens the store selected by conf.Driver.
func NewStore(conf config.StoreConfig, logger *zap.Logger) (storage.Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch conf.Driver {
	case config.DriverMemory, "":
		return memory.New(), nil
	case config.DriverWAL:
		s, err := walstore.Open(conf.Path, logger.Named("wal"))
		if err != nil {
			return nil, errors.Wrap(err, "failed to open wal store")
		}
		return s, nil
	case config.DriverSQLite:
		s, err := sqlite.Open(conf.Path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open sqlite store")
		}
		return s, nil
	default:
		return nil, errors.Errorf("unsupported store driver: %s", conf.Driver)
	}
}
