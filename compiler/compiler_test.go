package compiler

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LegendarySHT/MAIR-sub000/compiler/fixture"
	"github.com/LegendarySHT/MAIR-sub000/compiler/sanitizer"
)

func TestScenarios(t *testing.T) {
	files, err := filepath.Glob("testdata/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	ctx := context.Background()

	for _, name := range files {
		x, err := fixture.ReadFile(name)
		require.NoError(t, err, name)

		for _, fx := range x.Funcs {
			fx := fx

			t.Run(fx.Name, func(t *testing.T) {
				require.NotEmpty(t, fx.Expect)

				for _, exp := range fx.Expect {
					f, err := fx.Build()
					require.NoError(t, err)

					sans, err := sanitizer.Parse(exp.Sanitizers)
					require.NoError(t, err)

					res, err := ReduceFunc(ctx, f, Options{
						Reduce:     ModeOptions(exp.Mode),
						Sanitizers: sans,
					})
					require.NoError(t, err)

					var keep []string
					for _, k := range res.Reduce.Keep {
						keep = append(keep, f.InstName(res.MOPs[k].Inst))
					}

					assert.Equal(t, exp.Keep, keep, "mode %+v", exp.Mode)

					if exp.Checks == nil {
						continue
					}

					require.NotNil(t, res.Plan)

					for i, m := range res.MOPs {
						n := f.InstName(m.Inst)

						assert.Equal(t, exp.Checks[n], res.Plan.Checks[i].String(), "check %v", n)
					}
				}
			})
		}
	}
}

func TestReduceText(t *testing.T) {
	res, err := ReduceFile(context.Background(), "testdata/scenarios.yaml", Options{
		Sanitizers: []sanitizer.Sanitizer{sanitizer.Address{}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res)

	assert.Equal(t, "same_slot", res[0].Func.Name)

	text := string(res[0].AppendText(nil))

	assert.Contains(t, text, "func same_slot: 2 mops, 1 kept, 1 removed\n")
	assert.Contains(t, text, "  check w1 asan\n")
	assert.Contains(t, text, "  check w2 none\n")
}

func TestReduceErrors(t *testing.T) {
	_, err := Reduce(context.Background(), []byte(`funcs: [{name: f}]`), Options{})
	assert.Error(t, err)

	_, err = ReduceFile(context.Background(), "testdata/missing.yaml", Options{})
	assert.Error(t, err)
}
