package ssafront

import (
	"context"
	"go/types"
	"reflect"
	"slices"
	"strings"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/buildssa"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/LegendarySHT/MAIR-sub000/compiler/mop"
	"github.com/LegendarySHT/MAIR-sub000/compiler/reduce"
)

type (
	// FuncResult is the reduction of one Go function.
	FuncResult struct {
		Name string

		Lowered *Lowered
		Reduce  *reduce.Result
	}

	// Result is what the Analyzer returns for a package.
	Result struct {
		Funcs []*FuncResult

		// Skipped maps function names to the reason they were not lowered.
		Skipped map[string]string
	}
)

// Analyzer reports memory access checks covered by another check.
var Analyzer = NewAnalyzer(reduce.Options{})

var errSkip = errors.New("not lowered")

func NewAnalyzer(opts reduce.Options) *analysis.Analyzer {
	return &analysis.Analyzer{
		Name:       "mair",
		Doc:        "reports memory access checks made redundant by another check of the same memory",
		Requires:   []*analysis.Analyzer{buildssa.Analyzer},
		ResultType: reflect.TypeOf(new(Result)),
		Run: func(pass *analysis.Pass) (interface{}, error) {
			return run(pass, opts)
		},
	}
}

func run(pass *analysis.Pass, opts reduce.Options) (interface{}, error) {
	ctx := tlog.ContextWithSpan(context.Background(), tlog.Root())

	in := pass.ResultOf[buildssa.Analyzer].(*buildssa.SSA)

	res, err := ReduceFuncs(ctx, in.SrcFuncs, pass.TypesSizes, opts)
	if err != nil {
		return nil, errors.Wrap(err, "package %v", pass.Pkg.Path())
	}

	for _, fr := range res.Funcs {
		r := fr.Reduce

		for _, rm := range r.Removed {
			d := r.MOPs[rm.MOP]
			k := r.MOPs[rm.By]

			pass.Reportf(fr.Lowered.Pos(d.Inst), "%v check is covered by %v at %v",
				d.Kind, k.Kind, pass.Fset.Position(fr.Lowered.Pos(k.Inst)))
		}
	}

	return res, nil
}

// ReduceFuncs lowers and reduces every function with a body.
// Functions which can't be lowered are recorded in Result.Skipped.
func ReduceFuncs(ctx context.Context, fns []*ssa.Function, sizes types.Sizes, opts reduce.Options) (res *Result, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "ssafront", "funcs", len(fns))
	defer tr.Finish("err", &err)

	res = &Result{Skipped: map[string]string{}}

	for _, fn := range fns {
		fr, err := ReduceFunc(ctx, fn, sizes, opts)
		if errors.Is(err, errSkip) {
			res.Skipped[fn.String()] = err.Error()
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "%v", fn)
		}

		res.Funcs = append(res.Funcs, fr)
	}

	return res, nil
}

func ReduceFunc(ctx context.Context, fn *ssa.Function, sizes types.Sizes, opts reduce.Options) (*FuncResult, error) {
	l, err := Lower(fn, sizes)
	if err != nil {
		return nil, errors.Wrap(errSkip, "%v", err)
	}

	mops := mop.Collect(l.Func)

	r, err := reduce.Reduce(ctx, l.Func, nil, mops, opts)
	if err != nil {
		return nil, errors.Wrap(err, "reduce")
	}

	return &FuncResult{
		Name:    shortName(fn),
		Lowered: l,
		Reduce:  r,
	}, nil
}

// Load loads packages matching patterns and builds their ssa form.
// It returns source functions of the matched packages and their closures.
func Load(ctx context.Context, dir string, patterns ...string) (fns []*ssa.Function, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "load packages", "dir", dir, "patterns", patterns)
	defer tr.Finish("err", &err)

	cfg := &packages.Config{
		Mode:    packages.LoadAllSyntax,
		Dir:     dir,
		Context: ctx,
	}

	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, errors.Wrap(err, "load")
	}

	if n := packages.PrintErrors(pkgs); n != 0 {
		return nil, errors.New("%d errors in packages", n)
	}

	prog, spkgs := ssautil.AllPackages(pkgs, ssa.InstantiateGenerics)
	prog.Build()

	want := map[*ssa.Package]bool{}
	for _, p := range spkgs {
		if p != nil {
			want[p] = true
		}
	}

	for fn := range ssautil.AllFunctions(prog) {
		if fn.Pkg == nil || !want[fn.Pkg] || fn.Synthetic != "" && fn.Origin() == nil {
			continue
		}

		fns = append(fns, fn)
	}

	slices.SortFunc(fns, func(a, b *ssa.Function) int {
		return strings.Compare(a.String(), b.String())
	})

	tr.Printw("loaded", "packages", len(pkgs), "funcs", len(fns))

	return fns, nil
}
