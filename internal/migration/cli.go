package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// CLI 把迁移操作渲染为终端输出
type CLI struct {
	migrator Migrator
	out      io.Writer
}

// NewCLI 创建 CLI，out 为 nil 时写到标准输出
func NewCLI(m Migrator, out io.Writer) *CLI {
	if out == nil {
		out = os.Stdout
	}
	return &CLI{migrator: m, out: out}
}

// Up 应用全部待执行迁移
func (c *CLI) Up(ctx context.Context) error {
	return c.run(ctx, "Applying pending migrations", c.migrator.Up)
}

// Down 回退一步，all 为 true 时回退全部
func (c *CLI) Down(ctx context.Context, all bool) error {
	if all {
		return c.run(ctx, "Rolling back all migrations", c.migrator.DownAll)
	}
	return c.run(ctx, "Rolling back the last migration", c.migrator.Down)
}

// Steps 前进或回退 n 步
func (c *CLI) Steps(ctx context.Context, n int) error {
	msg := fmt.Sprintf("Applying %d migration(s)", n)
	if n < 0 {
		msg = fmt.Sprintf("Rolling back %d migration(s)", -n)
	}
	return c.run(ctx, msg, func(ctx context.Context) error { return c.migrator.Steps(ctx, n) })
}

// Goto 迁移到指定版本
func (c *CLI) Goto(ctx context.Context, version uint) error {
	return c.run(ctx, fmt.Sprintf("Migrating to version %d", version),
		func(ctx context.Context) error { return c.migrator.Goto(ctx, version) })
}

// Force 强制写入版本号
func (c *CLI) Force(ctx context.Context, version int) error {
	return c.run(ctx, fmt.Sprintf("Forcing schema version to %d", version),
		func(ctx context.Context) error { return c.migrator.Force(ctx, version) })
}

func (c *CLI) run(ctx context.Context, msg string, op func(context.Context) error) error {
	fmt.Fprintf(c.out, "%s...\n", msg)
	if err := op(ctx); err != nil {
		return err
	}
	v, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Done. Schema version: %s\n", versionLabel(v, dirty))
	return nil
}

// Version 打印当前版本
func (c *CLI) Version(ctx context.Context) error {
	v, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	if v == 0 {
		fmt.Fprintln(c.out, "No migrations applied yet.")
		return nil
	}
	fmt.Fprintf(c.out, "Schema version: %s\n", versionLabel(v, dirty))
	return nil
}

// Status 打印每条迁移的状态与汇总
func (c *CLI) Status(ctx context.Context) error {
	steps, err := c.migrator.Status(ctx)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		fmt.Fprintln(c.out, "No migrations found.")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	applied := 0
	for _, s := range steps {
		state := "pending"
		switch {
		case s.Dirty:
			state = "dirty"
		case s.Applied:
			state = "applied"
			applied++
		}
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, state)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "\n%d of %d applied, %d pending\n", applied, len(steps), len(steps)-applied)
	return nil
}

// Info 打印版本概况
func (c *CLI) Info(ctx context.Context) error {
	sum, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Schema version:\t%s\n", versionLabel(sum.Version, sum.Dirty))
	fmt.Fprintf(w, "Migrations:\t%d\n", sum.Total)
	fmt.Fprintf(w, "Applied:\t%d\n", sum.Applied)
	fmt.Fprintf(w, "Pending:\t%d\n", sum.Pending)
	return w.Flush()
}

func versionLabel(v uint, dirty bool) string {
	if v == 0 {
		return "none"
	}
	if dirty {
		return fmt.Sprintf("%d (dirty)", v)
	}
	return fmt.Sprintf("%d", v)
}
