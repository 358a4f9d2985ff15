package tags

import (
	"math/rand"
	"reflect"
	"testing"
)

func TestNewSet_SortsAndDeduplicates(t *testing.T) {
	s := NewSet("1.2.0", "0.1.0", "1.2.0", "", "  ", "0.10.0")
	want := []string{"0.1.0", "0.10.0", "1.2.0"}
	if got := s.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
}

func TestFromRefs_DropsPeeledAndNonTags(t *testing.T) {
	refs := []string{
		"refs/tags/0.1.0",
		"refs/tags/0.1.0^{}",
		"refs/tags/0.2.0",
		"refs/heads/main",
		"HEAD",
		"refs/tags/",
		"refs/tags/0.3.0^{}",
	}
	s := FromRefs(refs)

	want := []string{"0.1.0", "0.2.0"}
	if got := s.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("FromRefs() = %v, want %v", got, want)
	}
	for _, n := range s.Names() {
		if len(n) >= len(PeeledSuffix) && n[len(n)-len(PeeledSuffix):] == PeeledSuffix {
			t.Errorf("peeled entry %q leaked into set", n)
		}
	}
}

func TestTagName(t *testing.T) {
	tests := []struct {
		ref    string
		want   string
		wantOK bool
	}{
		{"refs/tags/1.0.0", "1.0.0", true},
		{"refs/tags/release/1.0", "release/1.0", true},
		{"refs/tags/1.0.0^{}", "", false},
		{"refs/heads/1.0.0", "", false},
		{"1.0.0", "", false},
	}
	for _, tt := range tests {
		got, ok := TagName(tt.ref)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("TagName(%q) = (%q, %v), want (%q, %v)", tt.ref, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestComputeMissing(t *testing.T) {
	tests := []struct {
		name     string
		local    []string
		upstream []string
		want     []string
	}{
		{"empty local", nil, []string{"1.0.0"}, []string{"1.0.0"}},
		{"identical", []string{"1.0.0", "1.1.0"}, []string{"1.1.0", "1.0.0"}, []string{}},
		{"gap in middle", []string{"0.1.0", "0.3.0"}, []string{"0.1.0", "0.2.0", "0.3.0", "0.4.0"}, []string{"0.2.0", "0.4.0"}},
		{"local has extras", []string{"0.0.1", "fork-only"}, []string{"0.0.1", "0.0.2"}, []string{"0.0.2"}},
		{"both empty", nil, nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeMissing(NewSet(tt.local...), NewSet(tt.upstream...)).Names()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ComputeMissing() = %v, want %v", got, tt.want)
			}
		})
	}
}

// The difference must equal the mathematical one regardless of the order the
// names were listed in.
func TestComputeMissing_OrderIndependent(t *testing.T) {
	upstream := []string{"0.1.0", "0.2.0", "0.9.0", "0.10.0", "1.0.0", "1.0.0-rc1", "2.3.4"}
	local := []string{"0.1.0", "0.10.0", "2.3.4"}

	want := map[string]bool{"0.2.0": true, "0.9.0": true, "1.0.0": true, "1.0.0-rc1": true}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		u := append([]string(nil), upstream...)
		l := append([]string(nil), local...)
		rng.Shuffle(len(u), func(a, b int) { u[a], u[b] = u[b], u[a] })
		rng.Shuffle(len(l), func(a, b int) { l[a], l[b] = l[b], l[a] })

		got := ComputeMissing(NewSet(l...), NewSet(u...))
		if got.Len() != len(want) {
			t.Fatalf("iteration %d: got %v", i, got.Names())
		}
		for _, n := range got.Names() {
			if !want[n] {
				t.Fatalf("iteration %d: unexpected %q", i, n)
			}
		}
	}
}

func TestComputeMissing_IdempotentAfterUnion(t *testing.T) {
	local := NewSet("1.0.0")
	upstream := NewSet("1.0.0", "1.1.0", "1.2.0")

	missing := ComputeMissing(local, upstream)
	local = local.Union(missing)

	if !local.IsSubsetOf(upstream) {
		t.Fatalf("local %v is not a subset of upstream", local.Names())
	}
	if again := ComputeMissing(local, upstream); !again.IsEmpty() {
		t.Errorf("second diff = %v, want empty", again.Names())
	}
}

func TestLatest_NumericOrdering(t *testing.T) {
	got, ok := Latest(NewSet("0.9.0", "0.10.0", "0.2.0"))
	if !ok || got != "0.10.0" {
		t.Errorf("Latest() = (%q, %v), want (0.10.0, true)", got, ok)
	}
}

func TestLatest(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		want  string
	}{
		{"single", []string{"1.0.0"}, "1.0.0"},
		{"release beats prerelease", []string{"1.0.0-rc.1", "1.0.0"}, "1.0.0"},
		{"four segments", []string{"0.2.7.3", "0.2.7.4"}, "0.2.7.4"},
		{"non-version below versions", []string{"nightly", "0.0.1"}, "0.0.1"},
		{"all non-version lexical", []string{"alpha", "beta"}, "beta"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Latest(NewSet(tt.names...))
			if !ok || got != tt.want {
				t.Errorf("Latest(%v) = (%q, %v), want %q", tt.names, got, ok, tt.want)
			}
		})
	}
}

func TestLatest_Empty(t *testing.T) {
	if _, ok := Latest(Set{}); ok {
		t.Error("Latest(empty) reported ok")
	}
}

func TestSortByVersion(t *testing.T) {
	got := SortByVersion(NewSet("0.10.0", "0.9.0", "0.2.0"))
	want := []string{"0.2.0", "0.9.0", "0.10.0"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SortByVersion() = %v, want %v", got, want)
	}
}

func TestSet_StringAndContains(t *testing.T) {
	s := NewSet("b", "a")
	if s.String() != "a\nb" {
		t.Errorf("String() = %q", s.String())
	}
	if !s.Contains("a") || s.Contains("c") {
		t.Error("Contains() mismatch")
	}
	if Ref("1.0.0") != "refs/tags/1.0.0" {
		t.Errorf("Ref() = %q", Ref("1.0.0"))
	}
}
