package ordered_test

import (
	"testing"

	"github.com/tir-org/tir/base/ordered"
)

type entry struct {
	k string
	v int
}

func TestMap(t *testing.T) {
	tests := []struct {
		entries []entry
		want    []entry
	}{
		{
			entries: []entry{
				{k: "a", v: 1},
				{k: "b", v: 2},
				{k: "c", v: 3},
			},
			want: []entry{
				{k: "a", v: 1},
				{k: "b", v: 2},
				{k: "c", v: 3},
			},
		},
		{
			entries: []entry{
				{k: "a", v: 1},
				{k: "b", v: 2},
				{k: "a", v: 3},
			},
			want: []entry{
				{k: "a", v: 3},
				{k: "b", v: 2},
			},
		},
	}
	for ti, test := range tests {
		m := ordered.NewMap[string, int]()
		for _, entry := range test.entries {
			m.Store(entry.k, entry.v)
		}
		if m.Size() != len(test.want) {
			t.Errorf("test %d: map has %d entries but want %d", ti, m.Size(), len(test.want))
			continue
		}
		i := 0
		for gotK, gotV := range m.Iter() {
			wantK, wantV := test.want[i].k, test.want[i].v
			if gotK != wantK || gotV != wantV {
				t.Errorf("test %d entry %d: got %s->%d but want %s->%d", ti, i, gotK, gotV, wantK, wantV)
			}
			i++
		}
	}
}

func TestMapLoadOrStore(t *testing.T) {
	m := ordered.NewMap[string, int]()
	if v, ok := m.LoadOrStore("a", 1); ok || v != 1 {
		t.Errorf("LoadOrStore on empty map: got (%d, %v) but want (1, false)", v, ok)
	}
	if v, ok := m.LoadOrStore("a", 2); !ok || v != 1 {
		t.Errorf("LoadOrStore on stored key: got (%d, %v) but want (1, true)", v, ok)
	}
}
