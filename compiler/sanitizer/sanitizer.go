// Package sanitizer describes which memory operations each sanitizer checks
// and how it wants them reduced.
package sanitizer

import (
	"context"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/LegendarySHT/MAIR-sub000/compiler/ir"
	"github.com/LegendarySHT/MAIR-sub000/compiler/mop"
	"github.com/LegendarySHT/MAIR-sub000/compiler/oracle"
	"github.com/LegendarySHT/MAIR-sub000/compiler/reduce"
)

type (
	// Mask is a set of sanitizers a check is emitted for.
	Mask uint8

	Sanitizer interface {
		Name() string
		Mask() Mask

		// AppliesTo reports whether mops of kind k get this sanitizer's check.
		AppliesTo(k mop.Kind) bool

		// Combine adds this sanitizer to the checks other
		// already emitted for a mop of kind k.
		Combine(k mop.Kind, other Mask) Mask

		// Options adapts the caller's reduction options.
		Options(base reduce.Options) reduce.Options
	}

	// Address sanitizer checks every access. Reads and writes are equal to it.
	Address struct{}

	// Thread sanitizer checks plain accesses and cares about
	// memory ordering and access direction. Atomics are intercepted whole.
	Thread struct{}

	// Memory sanitizer checks loads of possibly uninitialized memory.
	Memory struct{}

	Result struct {
		// Checks is indexed by mop id.
		Checks []Mask

		Reductions map[string]*reduce.Result
	}
)

const (
	ASan Mask = 1 << iota
	TSan
	MSan
)

var all = []Sanitizer{Address{}, Thread{}, Memory{}}

func (m Mask) String() string {
	return string(m.AppendText(nil))
}

// AppendText appends sanitizer names joined by '|', or "none".
func (m Mask) AppendText(b []byte) []byte {
	if m == 0 {
		return append(b, "none"...)
	}

	st := len(b)

	for _, s := range all {
		if m&s.Mask() == 0 {
			continue
		}

		if len(b) != st {
			b = append(b, '|')
		}

		b = append(b, s.Name()...)
	}

	return b
}

// Parse parses a comma separated list of sanitizer names.
func Parse(s string) (r []Sanitizer, err error) {
	var seen Mask

outer:
	for _, n := range strings.Split(s, ",") {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}

		for _, x := range all {
			if x.Name() != n {
				continue
			}

			if seen&x.Mask() == 0 {
				r = append(r, x)
				seen |= x.Mask()
			}

			continue outer
		}

		return nil, errors.New("unknown sanitizer: %q", n)
	}

	return r, nil
}

func (Address) Name() string { return "asan" }
func (Address) Mask() Mask { return ASan }
func (Address) AppliesTo(k mop.Kind) bool { return true }
func (s Address) Combine(k mop.Kind, other Mask) Mask { return combine(s, k, other) }

func (Address) Options(base reduce.Options) reduce.Options {
	base.WriteSensitive = false
	base.Race = false

	return base
}

func (Thread) Name() string { return "tsan" }
func (Thread) Mask() Mask { return TSan }

func (Thread) AppliesTo(k mop.Kind) bool {
	return k != mop.Atomic
}

func (s Thread) Combine(k mop.Kind, other Mask) Mask { return combine(s, k, other) }

func (Thread) Options(base reduce.Options) reduce.Options {
	base.WriteSensitive = true
	base.Race = true

	return base
}

func (Memory) Name() string { return "msan" }
func (Memory) Mask() Mask { return MSan }

// AppliesTo is true for kinds reading memory which may be uninitialized.
func (Memory) AppliesTo(k mop.Kind) bool {
	return k == mop.Read || k == mop.BulkCopy
}

func (s Memory) Combine(k mop.Kind, other Mask) Mask { return combine(s, k, other) }

func (Memory) Options(base reduce.Options) reduce.Options {
	base.WriteSensitive = false
	base.Race = false

	return base
}

func combine(s Sanitizer, k mop.Kind, other Mask) Mask {
	if !s.AppliesTo(k) {
		return other
	}

	return other | s.Mask()
}

// Plan reduces mops separately for every sanitizer
// and returns the checks to emit for each mop.
func Plan(ctx context.Context, f *ir.Func, o *oracle.Set, mops []mop.MOP, base reduce.Options, sans ...Sanitizer) (res *Result, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "sanitizer plan", "func", f.Name, "mops", len(mops), "sanitizers", len(sans))
	defer tr.Finish("err", &err)

	res = &Result{
		Checks:     make([]Mask, len(mops)),
		Reductions: make(map[string]*reduce.Result, len(sans)),
	}

	for _, s := range sans {
		sub, orig := Select(mops, s)

		r, err := reduce.Reduce(ctx, f, o, sub, s.Options(base))
		if err != nil {
			return nil, errors.Wrap(err, "%v", s.Name())
		}

		res.Reductions[s.Name()] = r

		for _, k := range r.Keep {
			id := orig[k]
			res.Checks[id] = s.Combine(mops[id].Kind, res.Checks[id])
		}

		tr.V("sanitizer").Printw("reduced", "sanitizer", s.Name(), "candidates", len(sub), "keep", len(r.Keep))
	}

	return res, nil
}

// Select returns the mops s applies to renumbered from zero,
// and the original id of each of them.
func Select(mops []mop.MOP, s Sanitizer) (sub []mop.MOP, orig []mop.ID) {
	for _, m := range mops {
		if !s.AppliesTo(m.Kind) {
			continue
		}

		orig = append(orig, m.ID)

		m.ID = mop.ID(len(sub))
		sub = append(sub, m)
	}

	return sub, orig
}
