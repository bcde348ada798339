package plist

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestToYAMLKeepsOrder(t *testing.T) {
	tree := dict(
		"zeta", NewInteger(1),
		"alpha", String("x"),
		"list", Array{Boolean(true), Real(0.5)},
		"blob", Data{1, 2, 3},
		"ref", UID(4),
	)
	got, err := ToYAML(tree)
	if err != nil {
		t.Fatalf("to yaml: %v", err)
	}
	want := "zeta: 1\n" +
		"alpha: x\n" +
		"list:\n" +
		"- true\n" +
		"- 0.5\n" +
		"blob: AQID\n" +
		"ref:\n" +
		"  CF$UID: 4\n"
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Fatalf("yaml mismatch (-want +got):\n%s", diff)
	}
}

func TestFromYAML(t *testing.T) {
	doc := `
name: Sword
stats:
  str: 4
  dex: -2
tags: [melee, rare]
weight: 2.5
big: 18446744073709551615
slots:
  - z: 1
    a: 2
`
	got, err := FromYAML([]byte(doc))
	if err != nil {
		t.Fatalf("from yaml: %v", err)
	}
	want := dict(
		"name", String("Sword"),
		"stats", dict("str", NewInteger(4), "dex", NewInteger(-2)),
		"tags", Array{String("melee"), String("rare")},
		"weight", Real(2.5),
		"big", NewUnsignedInteger(math.MaxUint64),
		"slots", Array{dict("z", NewInteger(1), "a", NewInteger(2))},
	)
	if diff := cmp.Diff(Value(want), got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}

	root := got.(*Dictionary)
	if diff := cmp.Diff(want.Keys(), root.Keys()); diff != "" {
		t.Fatalf("top-level order lost (-want +got):\n%s", diff)
	}
	stats, _ := root.Get("stats")
	if diff := cmp.Diff([]string{"str", "dex"}, stats.(*Dictionary).Keys()); diff != "" {
		t.Fatalf("nested order lost (-want +got):\n%s", diff)
	}
	slots, _ := root.Get("slots")
	if diff := cmp.Diff([]string{"z", "a"}, slots.(Array)[0].(*Dictionary).Keys()); diff != "" {
		t.Fatalf("order inside sequence lost (-want +got):\n%s", diff)
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	tree := dict(
		"b", Array{String("one"), NewInteger(-7), dict("deep", Boolean(false))},
		"a", Real(0.25),
	)
	doc, err := ToYAML(tree)
	if err != nil {
		t.Fatalf("to yaml: %v", err)
	}
	got, err := FromYAML(doc)
	if err != nil {
		t.Fatalf("from yaml: %v", err)
	}
	if diff := cmp.Diff(Value(tree), got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestFromYAMLErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		kind Kind
	}{
		{"empty", "", KindUnrepresentable},
		{"null in sequence", "[1, null]", KindUnrepresentable},
		{"syntax", "a: [1, 2", KindMalformedHeader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tt.doc))
			if !IsKind(err, tt.kind) {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
		})
	}
}

func TestFromYAMLSkipsNullValues(t *testing.T) {
	got, err := FromYAML([]byte("a: 1\nb: null\n"))
	if err != nil {
		t.Fatalf("from yaml: %v", err)
	}
	if diff := cmp.Diff([]string{"a"}, got.(*Dictionary).Keys()); diff != "" {
		t.Fatalf("null entry kept (-want +got):\n%s", diff)
	}
}
