package cli

import (
	"fmt"

	"planforge/internal/sqllint"
)

type LintSQLCmd struct {
	Paths []string `arg:"" optional:"" help:"Files or directories to check." default:"."`
}

func (c *LintSQLCmd) Run(ctx *Context) error {
	vs, err := sqllint.Lint(c.Paths...)
	if err != nil {
		return err
	}
	if len(vs) == 0 {
		return nil
	}
	fmt.Fprintln(ctx.Err, "sqllint: SQL audit marker problems")
	for _, v := range vs {
		fmt.Fprintf(ctx.Err, "  %s:%d %s (%s)\n", v.File, v.Line, v.Message, v.Name)
	}
	return fmt.Errorf("%d violation(s)", len(vs))
}
