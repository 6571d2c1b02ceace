package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// CLI 将 Migrator 的操作渲染为 flowengine migrate 子命令的终端输出
type CLI struct {
	migrator Migrator
	out      io.Writer
}

// NewCLI 创建输出到 stdout 的 CLI
func NewCLI(migrator Migrator) *CLI {
	return &CLI{migrator: migrator, out: os.Stdout}
}

// SetOutput 替换输出目标
func (c *CLI) SetOutput(w io.Writer) {
	c.out = w
}

func (c *CLI) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// apply 执行一次变更并打印执行后的 schema 版本
func (c *CLI) apply(ctx context.Context, action string, fn func(context.Context) error) error {
	c.printf("%s...\n", action)
	if err := fn(ctx); err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	c.printf("schema version %d (%d applied, %d pending)\n",
		info.CurrentVersion, info.AppliedMigrations, info.PendingMigrations)
	return nil
}

// RunUp 应用全部待执行迁移
func (c *CLI) RunUp(ctx context.Context) error {
	return c.apply(ctx, "applying workflow schema migrations", c.migrator.Up)
}

// RunDown 回滚最近一次迁移
func (c *CLI) RunDown(ctx context.Context) error {
	return c.apply(ctx, "rolling back last migration", c.migrator.Down)
}

// RunDownAll 回滚全部迁移，工作流表将被删除
func (c *CLI) RunDownAll(ctx context.Context) error {
	return c.apply(ctx, "dropping workflow schema", c.migrator.DownAll)
}

// RunSteps n > 0 前进 n 步，n < 0 回退 |n| 步
func (c *CLI) RunSteps(ctx context.Context, n int) error {
	if n == 0 {
		c.printf("nothing to do\n")
		return nil
	}
	action := fmt.Sprintf("applying %d migration(s)", n)
	if n < 0 {
		action = fmt.Sprintf("rolling back %d migration(s)", -n)
	}
	return c.apply(ctx, action, func(ctx context.Context) error {
		return c.migrator.Steps(ctx, n)
	})
}

// RunGoto 迁移到指定版本
func (c *CLI) RunGoto(ctx context.Context, version uint) error {
	return c.apply(ctx, fmt.Sprintf("migrating to version %d", version), func(ctx context.Context) error {
		return c.migrator.Goto(ctx, version)
	})
}

// RunForce 只改写版本记录并清除 dirty 标记，不执行 SQL
func (c *CLI) RunForce(ctx context.Context, version int) error {
	if err := c.migrator.Force(ctx, version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	c.printf("schema version forced to %d\n", version)
	return nil
}

// RunVersion 打印当前版本
func (c *CLI) RunVersion(ctx context.Context) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch {
	case version == 0:
		c.printf("workflow schema not installed\n")
	case dirty:
		c.printf("schema version %d (dirty, run force after fixing the failed migration)\n", version)
	default:
		c.printf("schema version %d\n", version)
	}
	return nil
}

func statusLabel(s MigrationStatus) string {
	switch {
	case s.Dirty:
		return "dirty"
	case s.Applied:
		return "applied"
	default:
		return "pending"
	}
}

// RunStatus 以表格列出每个迁移的状态
func (c *CLI) RunStatus(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("read migration status: %w", err)
	}
	if len(statuses) == 0 {
		c.printf("no migrations embedded for this database\n")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tMIGRATION\tSTATE")
	for _, s := range statuses {
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, statusLabel(s))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return c.RunInfo(ctx)
}

// RunInfo 打印汇总计数
func (c *CLI) RunInfo(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return fmt.Errorf("read migration info: %w", err)
	}
	c.printf("version=%d dirty=%t total=%d applied=%d pending=%d\n",
		info.CurrentVersion, info.Dirty, info.TotalMigrations, info.AppliedMigrations, info.PendingMigrations)
	return nil
}
