package template

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestVariables(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		want []string
	}{
		{"none", "plain text", nil},
		{"single", "a {shot} of coffee", []string{"shot"}},
		{"order", "{b} then {a} then {c}", []string{"b", "a", "c"}},
		{"dedup", "{x} and {x} and {y}", []string{"x", "y"}},
		{"underscore", "{_pre} {snake_case}", []string{"_pre", "snake_case"}},
		{"rejects leading digit", "{1bad} {good}", []string{"good"}},
		{"rejects spaces", "{not valid} {ok}", []string{"ok"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Variables(tt.tmpl)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Variables(%q) = %v, want %v", tt.tmpl, got, tt.want)
			}
		})
	}
}

func TestInterpolate(t *testing.T) {
	vars := map[string]string{"subject": "a fox", "style": "watercolor"}

	got := Interpolate("{subject} in {style}", vars)
	if got != "a fox in watercolor" {
		t.Errorf("got %q", got)
	}

	// Unbound references stay literal.
	got = Interpolate("{subject} by {artist}", vars)
	if got != "a fox by {artist}" {
		t.Errorf("got %q", got)
	}

	got = Interpolate("no variables here", vars)
	if got != "no variables here" {
		t.Errorf("got %q", got)
	}
}

func TestInterpolateWithListsScalarOnly(t *testing.T) {
	res, err := InterpolateWithLists("{a}-{b}", map[string]string{"a": "1", "b": "2"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Lists != nil {
		t.Errorf("expected nil list info, got %+v", res.Lists)
	}
	if len(res.Values) != 1 || res.Values[0] != "1-2" {
		t.Errorf("values = %v", res.Values)
	}
}

func TestInterpolateWithListsCartesian(t *testing.T) {
	lists := map[string][]string{
		"animal": {"cat", "dog"},
		"place":  {"moon", "mars", "venus"},
	}
	res, err := InterpolateWithLists("{animal} on {place}", nil, lists)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"cat on moon", "cat on mars", "cat on venus",
		"dog on moon", "dog on mars", "dog on venus",
	}
	if !reflect.DeepEqual(res.Values, want) {
		t.Errorf("values = %v, want %v", res.Values, want)
	}

	if res.Lists == nil {
		t.Fatal("expected list info")
	}
	if !reflect.DeepEqual(res.Lists.Names, []string{"animal", "place"}) {
		t.Errorf("names = %v", res.Lists.Names)
	}
	if !reflect.DeepEqual(res.Lists.Counts, []int{2, 3}) {
		t.Errorf("counts = %v", res.Lists.Counts)
	}
	if res.Lists.Total != 6 {
		t.Errorf("total = %d", res.Lists.Total)
	}
}

func TestInterpolateWithListsMixedBindings(t *testing.T) {
	res, err := InterpolateWithLists(
		"{style} {animal}",
		map[string]string{"style": "neon"},
		map[string][]string{"animal": {"owl", "bat"}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"neon owl", "neon bat"}
	if !reflect.DeepEqual(res.Values, want) {
		t.Errorf("values = %v, want %v", res.Values, want)
	}
}

func TestInterpolateWithListsEmptyList(t *testing.T) {
	_, err := InterpolateWithLists(
		"{a} {b} {c}",
		nil,
		map[string][]string{"a": {}, "b": {"x"}, "c": {}},
	)
	if !errors.Is(err, ErrEmptyList) {
		t.Fatalf("expected ErrEmptyList, got %v", err)
	}
	if !strings.Contains(err.Error(), "a, c") {
		t.Errorf("error should name the empty lists: %v", err)
	}
}

func TestInterpolateWithListsIgnoresUnreferencedLists(t *testing.T) {
	// An empty list that the template never references must not fail the
	// resolution.
	res, err := InterpolateWithLists(
		"only {a}",
		nil,
		map[string][]string{"a": {"x", "y"}, "unused": {}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(res.Values, []string{"only x", "only y"}) {
		t.Errorf("values = %v", res.Values)
	}
}
