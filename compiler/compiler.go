package compiler

import (
	"context"
	"os"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/LegendarySHT/MAIR-sub000/compiler/fixture"
	"github.com/LegendarySHT/MAIR-sub000/compiler/format"
	"github.com/LegendarySHT/MAIR-sub000/compiler/ir"
	"github.com/LegendarySHT/MAIR-sub000/compiler/mop"
	"github.com/LegendarySHT/MAIR-sub000/compiler/oracle/local"
	"github.com/LegendarySHT/MAIR-sub000/compiler/reduce"
	"github.com/LegendarySHT/MAIR-sub000/compiler/sanitizer"
)

type (
	Options struct {
		Reduce reduce.Options

		// Sanitizers, if set, plan checks per sanitizer
		// in addition to the plain reduction.
		Sanitizers []sanitizer.Sanitizer
	}

	Result struct {
		Func *ir.Func
		MOPs []mop.MOP

		Reduce *reduce.Result
		Plan   *sanitizer.Result
	}
)

func ReduceFile(ctx context.Context, name string, opts Options) (res []*Result, err error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	tlog.SpanFromContext(ctx).Printw("read file", "size", len(text), "name", name)

	return Reduce(ctx, text, opts)
}

func Reduce(ctx context.Context, text []byte, opts Options) (res []*Result, err error) {
	x, err := fixture.Parse(text)
	if err != nil {
		return nil, errors.Wrap(err, "parse")
	}

	for _, fx := range x.Funcs {
		f, err := fx.Build()
		if err != nil {
			return nil, errors.Wrap(err, "func %v", fx.Name)
		}

		r, err := ReduceFunc(ctx, f, opts)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", fx.Name)
		}

		res = append(res, r)
	}

	return res, nil
}

// ReduceFunc extracts mops from a linked function and reduces them.
func ReduceFunc(ctx context.Context, f *ir.Func, opts Options) (res *Result, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "reduce func", "name", f.Name)
	defer tr.Finish("err", &err)

	if tr.If("dump_func") {
		b, err := format.Format(ctx, nil, f)
		if err != nil {
			return nil, errors.Wrap(err, "format")
		}

		tr.Printw("func", "listing", string(b))
	}

	res = &Result{
		Func: f,
		MOPs: mop.Collect(f),
	}

	o := local.New(f)

	res.Reduce, err = reduce.Reduce(ctx, f, o, res.MOPs, opts.Reduce)
	if err != nil {
		return nil, errors.Wrap(err, "reduce")
	}

	if len(opts.Sanitizers) != 0 {
		res.Plan, err = sanitizer.Plan(ctx, f, o, res.MOPs, opts.Reduce, opts.Sanitizers...)
		if err != nil {
			return nil, errors.Wrap(err, "plan")
		}
	}

	return res, nil
}

// ModeOptions converts a fixture mode into reduction options.
func ModeOptions(m fixture.Mode) reduce.Options {
	return reduce.Options{
		WriteSensitive:   m.WriteSensitive,
		SkipInterference: m.SkipInterference,
		Race:             m.Race,
		IgnoreCalls:      m.IgnoreCalls,
		Threshold:        m.Threshold,
		AllowVolatile:    m.AllowVolatile,
	}
}

func (r *Result) AppendText(b []byte) []byte {
	b = r.Reduce.AppendText(b)

	if r.Plan == nil {
		return b
	}

	for i, m := range r.MOPs {
		b = append(b, "  check "...)
		b = append(b, r.Func.InstName(m.Inst)...)
		b = append(b, ' ')
		b = r.Plan.Checks[i].AppendText(b)
		b = append(b, '\n')
	}

	return b
}
