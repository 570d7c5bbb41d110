package migration

import (
	"github.com/smallbiznis/nftcheckout/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg db.Config, log *zap.Logger) error {
		if cfg.Type != "postgres" {
			log.Named("migration").Warn("skipping embedded migrations for non-postgres dialect",
				zap.String("dialect", cfg.Type),
			)
			return nil
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
