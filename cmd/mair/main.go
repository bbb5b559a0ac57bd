package main

import (
	"context"
	"fmt"
	"os"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/LegendarySHT/MAIR-sub000/compiler"
	"github.com/LegendarySHT/MAIR-sub000/compiler/df"
	"github.com/LegendarySHT/MAIR-sub000/compiler/fixture"
	"github.com/LegendarySHT/MAIR-sub000/compiler/format"
	"github.com/LegendarySHT/MAIR-sub000/compiler/mop"
	"github.com/LegendarySHT/MAIR-sub000/compiler/reduce"
	"github.com/LegendarySHT/MAIR-sub000/compiler/sanitizer"
	"github.com/LegendarySHT/MAIR-sub000/compiler/ssafront"
)

func main() {
	reduceCmd := &cli.Command{
		Name:        "reduce",
		Description: "reduce checks of functions described in yaml files",
		Action:      reduceAct,
		Args:        cli.Args{},
		Flags:       append(reduceFlags(), cli.NewFlag("listing", false, "print annotated function listings")),
	}

	activeCmd := &cli.Command{
		Name:        "active",
		Description: "tell if the check of one instruction is still in force at another one",
		Action:      activeAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("func", "", "function name, the first one if empty"),
			cli.NewFlag("from", "", "instruction with the check"),
			cli.NewFlag("to", "", "instruction the check is queried at"),
			cli.NewFlag("side", "dom", "dom or postdom: which ordering events interfere"),
			cli.NewFlag("race", false, "race detection mode"),
			cli.NewFlag("ignore-calls", false, "calls do not interfere"),
			cli.NewFlag("threshold", 0, "run the block analysis for more mops than this"),
		},
	}

	checkCmd := &cli.Command{
		Name:        "check",
		Description: "reduce checks of Go packages",
		Action:      checkAct,
		Args:        cli.Args{},
		Flags:       reduceFlags(),
	}

	app := &cli.Command{
		Name:        "mair",
		Description: "mair removes sanitizer checks made redundant by other checks",
		Before:      before,
		Flags: []*cli.Flag{
			cli.NewFlag("verbosity,v", "", "logger verbosity topics"),
			cli.HelpFlag,
		},
		Commands: []*cli.Command{
			reduceCmd,
			activeCmd,
			checkCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func reduceFlags() []*cli.Flag {
	return []*cli.Flag{
		cli.NewFlag("race", false, "race detection mode: ordering events interfere"),
		cli.NewFlag("write-sensitive", false, "reads do not cover writes"),
		cli.NewFlag("skip-interference", false, "do not check paths for interfering instructions"),
		cli.NewFlag("ignore-calls", false, "calls do not interfere"),
		cli.NewFlag("allow-volatile", false, "volatile accesses take part in coverage"),
		cli.NewFlag("threshold", 0, "run the block analysis for more mops than this"),
		cli.NewFlag("sanitizers", "", "comma separated sanitizers to plan checks for: asan,tsan,msan"),
	}
}

func before(c *cli.Command) error {
	tlog.SetVerbosity(c.String("verbosity"))

	return nil
}

func reduceOptions(c *cli.Command) (opts compiler.Options, err error) {
	opts.Reduce = reduce.Options{
		Race:             c.Bool("race"),
		WriteSensitive:   c.Bool("write-sensitive"),
		SkipInterference: c.Bool("skip-interference"),
		IgnoreCalls:      c.Bool("ignore-calls"),
		AllowVolatile:    c.Bool("allow-volatile"),
		Threshold:        c.Int("threshold"),
	}

	opts.Sanitizers, err = sanitizer.Parse(c.String("sanitizers"))
	if err != nil {
		return opts, errors.Wrap(err, "sanitizers")
	}

	return opts, nil
}

func reduceAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	opts, err := reduceOptions(c)
	if err != nil {
		return err
	}

	var b []byte

	for _, a := range c.Args {
		res, err := compiler.ReduceFile(ctx, a, opts)
		if err != nil {
			return errors.Wrap(err, "reduce %v", a)
		}

		for _, r := range res {
			b = r.AppendText(b[:0])

			if c.Bool("listing") {
				b, err = format.Format(ctx, b, r.Reduce)
				if err != nil {
					return errors.Wrap(err, "format %v", r.Func.Name)
				}
			}

			fmt.Printf("%s", b)
		}
	}

	return nil
}

func activeAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	if len(c.Args) != 1 {
		return errors.New("exactly one file expected")
	}

	x, err := fixture.ReadFile(c.Args[0])
	if err != nil {
		return errors.Wrap(err, "read %v", c.Args[0])
	}

	if len(x.Funcs) == 0 {
		return errors.New("no functions in %v", c.Args[0])
	}

	fx := &x.Funcs[0]

	if n := c.String("func"); n != "" {
		var ok bool

		fx, ok = x.Find(n)
		if !ok {
			return errors.New("no function %v", n)
		}
	}

	f, err := fx.Build()
	if err != nil {
		return errors.Wrap(err, "func %v", fx.Name)
	}

	from, ok := f.Find(c.String("from"))
	if !ok {
		return errors.New("no instruction %q", c.String("from"))
	}

	to, ok := f.Find(c.String("to"))
	if !ok {
		return errors.New("no instruction %q", c.String("to"))
	}

	var side df.Side

	switch s := c.String("side"); s {
	case "dom":
		side = df.DomSide
	case "postdom":
		side = df.PostDomSide
	default:
		return errors.New("unknown side: %q", s)
	}

	opts := reduce.Options{
		Race:        c.Bool("race"),
		IgnoreCalls: c.Bool("ignore-calls"),
		Threshold:   c.Int("threshold"),
	}

	a := df.New(ctx, f, f, mop.Collect(f), opts.DF())

	ok, err = a.Query(from, to, side)
	if err != nil {
		return errors.Wrap(err, "query")
	}

	if ok {
		fmt.Printf("%v -> %v: active\n", c.String("from"), c.String("to"))
	} else {
		fmt.Printf("%v -> %v: not active\n", c.String("from"), c.String("to"))
	}

	return nil
}

func checkAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	opts, err := reduceOptions(c)
	if err != nil {
		return err
	}

	fns, err := ssafront.Load(ctx, ".", c.Args...)
	if err != nil {
		return errors.Wrap(err, "load")
	}

	res, err := ssafront.ReduceFuncs(ctx, fns, nil, opts.Reduce)
	if err != nil {
		return errors.Wrap(err, "reduce")
	}

	var total, kept int

	for _, fr := range res.Funcs {
		r := fr.Reduce

		if len(r.MOPs) == 0 {
			continue
		}

		total += len(r.MOPs)
		kept += len(r.Keep)

		fmt.Printf("%-40s mops %3d  kept %3d  removed %3d", fr.Name, len(r.MOPs), len(r.Keep), len(r.Removed))

		if len(opts.Sanitizers) != 0 {
			p, err := sanitizer.Plan(ctx, r.Func, nil, r.MOPs, opts.Reduce, opts.Sanitizers...)
			if err != nil {
				return errors.Wrap(err, "plan %v", fr.Name)
			}

			for _, s := range opts.Sanitizers {
				fmt.Printf("  %v %3d", s.Name(), len(p.Reductions[s.Name()].Keep))
			}
		}

		fmt.Printf("\n")
	}

	for fn, reason := range res.Skipped {
		tlog.V("skipped").Printw("function skipped", "func", fn, "reason", reason)
	}

	fmt.Printf("total: mops %d  kept %d\n", total, kept)

	return nil
}
