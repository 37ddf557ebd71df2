package affine_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tir-org/tir/ir/affine"
)

func mustParse(t *testing.T, src string) affine.Map {
	t.Helper()
	m, err := affine.ParseMapString(src)
	require.NoError(t, err, src)
	return m
}

func TestParsePrintRoundTrip(t *testing.T) {
	tests := []string{
		"(d0, d1) -> (d0, d1)",
		"() -> ()",
		"(d0) -> (0)",
		"(d0, d1, d2) -> (d2, d0)",
		"(d0, d1)[s0] -> (d0 + s0, d1 floordiv 2)",
		"(d0, d1) -> (d0 * 2 + d1)",
		"(d0, d1)[s0] -> (d0 + d1 - (s0 floordiv 2))",
		"(d0) -> (d0 mod 3)",
		"(d0)[s0, s1] -> (s1 ceildiv 4, d0)",
	}
	for _, src := range tests {
		m := mustParse(t, src)
		require.Equal(t, src, m.String())
		again := mustParse(t, m.String())
		require.True(t, m.Equal(again), "reparsed map %s differs", m)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		"",
		"d0 -> d0",
		"(d1) -> (d1)",
		"(d0) -> (d1)",
		"(d0) -> (s0)",
		"(d0) -> (d0",
		"(d0) -> (d0) trailing",
		"(d0) -> (d0 floordiv)",
	}
	for _, src := range tests {
		_, err := affine.ParseMapString(src)
		require.Error(t, err, "parsing %q", src)
	}
}

func TestSimplify(t *testing.T) {
	tests := []struct {
		got  affine.Expr
		want affine.Expr
	}{
		{got: affine.Add(affine.NewConst(2), affine.NewConst(3)), want: affine.NewConst(5)},
		{got: affine.Add(affine.NewDim(0), affine.NewConst(0)), want: affine.NewDim(0)},
		{got: affine.Mul(affine.NewDim(1), affine.NewConst(1)), want: affine.NewDim(1)},
		{got: affine.Mul(affine.NewDim(1), affine.NewConst(0)), want: affine.NewConst(0)},
		{got: affine.FloorDiv(affine.NewConst(7), affine.NewConst(2)), want: affine.NewConst(3)},
		{got: affine.FloorDiv(affine.NewConst(-7), affine.NewConst(2)), want: affine.NewConst(-4)},
		{got: affine.CeilDiv(affine.NewConst(7), affine.NewConst(2)), want: affine.NewConst(4)},
		{got: affine.Mod(affine.NewConst(-7), affine.NewConst(3)), want: affine.NewConst(2)},
		{got: affine.Sub(affine.NewDim(0), affine.NewConst(0)), want: affine.NewDim(0)},
		{
			got:  affine.Add(affine.Add(affine.NewDim(0), affine.NewConst(2)), affine.NewConst(3)),
			want: affine.Add(affine.NewDim(0), affine.NewConst(5)),
		},
	}
	for _, test := range tests {
		require.Equal(t, test.want, test.got)
	}
}

func TestEval(t *testing.T) {
	m := mustParse(t, "(d0, d1)[s0] -> (d0 * 8 + d1, s0 floordiv 2)")
	v0, err := affine.Eval(m.Result(0), []int64{3, 5}, []int64{9})
	require.NoError(t, err)
	require.Equal(t, int64(29), v0)
	v1, err := affine.Eval(m.Result(1), []int64{3, 5}, []int64{9})
	require.NoError(t, err)
	require.Equal(t, int64(4), v1)

	_, err = affine.Eval(affine.NewDim(2), []int64{1}, nil)
	require.Error(t, err)
}

func TestIdentityAndPermutation(t *testing.T) {
	id := affine.Identity(3)
	require.True(t, id.IsIdentity())
	require.True(t, id.IsPermutation())

	perm, err := affine.PermutationMap(1, 0, 2)
	require.NoError(t, err)
	require.False(t, perm.IsIdentity())
	require.True(t, perm.IsPermutation())
	require.Equal(t, "(d0, d1, d2) -> (d1, d0, d2)", perm.String())

	_, err = affine.PermutationMap(0, 0)
	require.Error(t, err)

	notPerm := mustParse(t, "(d0, d1) -> (d0 + d1, d1)")
	require.False(t, notPerm.IsPermutation())
}

func TestConcat(t *testing.T) {
	a := mustParse(t, "(d0, d1) -> (d0)")
	b := mustParse(t, "(d0, d1) -> (d1, d0)")
	cat, err := affine.Concat(a, b)
	require.NoError(t, err)
	require.Equal(t, "(d0, d1) -> (d0, d1, d0)", cat.String())

	c := mustParse(t, "(d0) -> (d0)")
	_, err = affine.Concat(a, c)
	require.Error(t, err)
}

func TestCompose(t *testing.T) {
	// m selects and scales, g permutes.
	m := mustParse(t, "(d0, d1) -> (d0 * 2, d1)")
	g := mustParse(t, "(d0, d1) -> (d1, d0)")
	got, err := m.Compose(g)
	require.NoError(t, err)
	require.Equal(t, "(d0, d1) -> (d1 * 2, d0)", got.String())

	_, err = m.Compose(mustParse(t, "(d0) -> (d0)"))
	require.Error(t, err)
}

func TestInversePermutation(t *testing.T) {
	tests := []struct {
		src  string
		want string
		ok   bool
	}{
		{src: "(d0, d1) -> (d1, d0)", want: "(d0, d1) -> (d1, d0)", ok: true},
		{src: "(d0, d1) -> (d0, d1, d0)", want: "(d0, d1, d2) -> (d0, d1)", ok: true},
		// d1 only occurs inside a compound expression.
		{src: "(d0, d1) -> (d0, d0 + d1)", ok: false},
		{src: "(d0, d1) -> (d0)", ok: false},
		// The first plain occurrence wins.
		{src: "(d0, d1) -> (d0 + d1, d0, d1, d0)", want: "(d0, d1, d2, d3) -> (d1, d2)", ok: true},
	}
	for _, test := range tests {
		m := mustParse(t, test.src)
		inv, ok := affine.InversePermutation(m)
		require.Equal(t, test.ok, ok, "inverting %s", m)
		if ok {
			require.Equal(t, test.want, inv.String(), "inverting %s", m)
		}
	}
}

func TestInversePermutationWithSymbols(t *testing.T) {
	m := mustParse(t, "(d0)[s0] -> (d0 + s0)")
	_, ok := affine.InversePermutation(m)
	require.False(t, ok)
}

func TestHasSymbols(t *testing.T) {
	require.True(t, affine.HasSymbols(affine.Add(affine.NewDim(0), affine.NewSymbol(0))))
	require.False(t, affine.HasSymbols(affine.Add(affine.NewDim(0), affine.NewConst(1))))
}
