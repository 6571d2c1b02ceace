package migration

import (
	"fmt"

	"go.uber.org/zap"

	appconfig "github.com/BaSui01/flowengine/config"
)

// databaseURL 将 DatabaseConfig 转换为 golang-migrate 可识别的连接串
func databaseURL(dbType DatabaseType, c appconfig.DatabaseConfig) string {
	switch dbType {
	case DatabaseTypeSQLite:
		// sqlite 的 Name 即文件路径
		return BuildDatabaseURL(dbType, "", 0, c.Name, "", "", "")
	case DatabaseTypeMySQL:
		return BuildDatabaseURL(dbType, c.Host, c.Port, c.Name, c.User, c.Password, "")
	default:
		return BuildDatabaseURL(dbType, c.Host, c.Port, c.Name, c.User, c.Password, c.SSLMode)
	}
}

// NewMigratorFromDatabaseConfig 为执行记录库创建迁移器，logger 可为 nil
func NewMigratorFromDatabaseConfig(c appconfig.DatabaseConfig, logger *zap.Logger) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(c.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}
	return NewMigrator(&Config{
		DatabaseType:   dbType,
		DatabaseURL:    databaseURL(dbType, c),
		MigrationsPath: c.MigrationsPath,
		Logger:         logger,
	})
}

// NewMigratorFromURL 直接使用连接串，供 migrate --db-url 使用
func NewMigratorFromURL(dbType, dbURL string) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}
	return NewMigrator(&Config{DatabaseType: dt, DatabaseURL: dbURL})
}
