package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/BaSui01/flowengine/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

// migrateFlags 是所有迁移子命令共享的参数
type migrateFlags struct {
	configPath string
	dbType     string
	dbURL      string
	all        bool
}

func (f *migrateFlags) bind(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "Path to config file")
	fs.StringVar(&f.dbType, "db-type", "", "Database type (postgres, mysql, sqlite)")
	fs.StringVar(&f.dbURL, "db-url", "", "Database connection URL")
}

// migrator 优先使用 --db-type/--db-url，否则读取配置文件中的数据库配置
func (f *migrateFlags) migrator() (*migration.DefaultMigrator, error) {
	if f.dbType != "" && f.dbURL != "" {
		return migration.NewMigratorFromURL(f.dbType, f.dbURL)
	}

	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if f.dbType != "" {
		cfg.Database.Driver = f.dbType
	}
	if cfg.Database.Driver == "" {
		return nil, fmt.Errorf("database driver not configured")
	}
	return migration.NewMigratorFromDatabaseConfig(cfg.Database, nil)
}

// migrateCommand 执行一个迁移子命令，arg 为可选的位置参数（版本号或步数）
type migrateCommand func(ctx context.Context, cli *migration.CLI, f *migrateFlags, arg string) error

var migrateCommands = map[string]migrateCommand{
	"up": func(ctx context.Context, cli *migration.CLI, _ *migrateFlags, _ string) error {
		return cli.RunUp(ctx)
	},
	"down": func(ctx context.Context, cli *migration.CLI, f *migrateFlags, _ string) error {
		if f.all {
			return cli.RunDownAll(ctx)
		}
		return cli.RunDown(ctx)
	},
	"reset": func(ctx context.Context, cli *migration.CLI, _ *migrateFlags, _ string) error {
		return cli.RunDownAll(ctx)
	},
	"status": func(ctx context.Context, cli *migration.CLI, _ *migrateFlags, _ string) error {
		return cli.RunStatus(ctx)
	},
	"info": func(ctx context.Context, cli *migration.CLI, _ *migrateFlags, _ string) error {
		return cli.RunInfo(ctx)
	},
	"version": func(ctx context.Context, cli *migration.CLI, _ *migrateFlags, _ string) error {
		return cli.RunVersion(ctx)
	},
	"goto": func(ctx context.Context, cli *migration.CLI, _ *migrateFlags, arg string) error {
		version, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version number: %q", arg)
		}
		return cli.RunGoto(ctx, uint(version))
	},
	"force": func(ctx context.Context, cli *migration.CLI, _ *migrateFlags, arg string) error {
		version, err := strconv.ParseInt(arg, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version number: %q", arg)
		}
		return cli.RunForce(ctx, int(version))
	},
	"steps": func(ctx context.Context, cli *migration.CLI, _ *migrateFlags, arg string) error {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("invalid step count: %q", arg)
		}
		return cli.RunSteps(ctx, n)
	},
}

// positionalMigrate 需要位置参数的子命令
var positionalMigrate = map[string]bool{"goto": true, "force": true, "steps": true}

// runMigrate handles the migrate command and its subcommands
func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage()
		os.Exit(1)
	}

	name, rest := args[0], args[1:]
	if name == "help" || name == "-h" || name == "--help" {
		printMigrateUsage()
		return
	}
	cmd, ok := migrateCommands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown migrate subcommand: %s\n", name)
		printMigrateUsage()
		os.Exit(1)
	}

	var arg string
	if positionalMigrate[name] {
		if len(rest) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: flowengine migrate %s <n>\n", name)
			os.Exit(1)
		}
		arg, rest = rest[0], rest[1:]
	}

	var f migrateFlags
	fs := flag.NewFlagSet("migrate "+name, flag.ExitOnError)
	f.bind(fs)
	if name == "down" {
		fs.BoolVar(&f.all, "all", false, "Rollback all migrations")
	}
	fs.Parse(rest)

	migrator, err := f.migrator()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer migrator.Close()

	// Ctrl-C 在当前迁移完成后停止
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd(ctx, migration.NewCLI(migrator), &f, arg); err != nil {
		migrator.Close()
		fmt.Fprintf(os.Stderr, "Migration %s failed: %v\n", name, err)
		os.Exit(1)
	}
}

// printMigrateUsage prints the usage information for migrate command
func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  flowengine migrate <subcommand> [options]

Subcommands:
  up          Apply all pending migrations
  down        Rollback the last migration (--all rolls back everything)
  steps <n>   Apply (n > 0) or roll back (n < 0) n migrations
  status      Show migration status
  info        Show applied and pending counts
  version     Show current migration version
  goto <v>    Migrate to a specific version
  force <v>   Force set migration version (use with caution)
  reset       Rollback all migrations
  help        Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  flowengine migrate up
  flowengine migrate up --config /etc/flowengine/config.yaml
  flowengine migrate down --all
  flowengine migrate status
  flowengine migrate goto 1
  flowengine migrate force 0`)
}
