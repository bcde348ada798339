package plist

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestToJSON(t *testing.T) {
	tree := dict(
		"s", String(`say "hi"`),
		"i", NewInteger(-3),
		"u", NewUnsignedInteger(math.MaxUint64),
		"r", Real(1.5),
		"b", Boolean(true),
		"d", Date(0),
		"data", Data{1, 2, 3},
		"uid", UID(4),
		"arr", Array{NewInteger(1), NewInteger(2)},
		"empty", Array{},
		"dict", NewDictionary(0),
	)
	got, err := ToJSON(tree)
	if err != nil {
		t.Fatalf("to json: %v", err)
	}
	want := `{"s":"say \"hi\"","i":-3,"u":18446744073709551615,"r":1.5,"b":true,` +
		`"d":"2001-01-01T00:00:00Z","data":"AQID","uid":{"CF$UID":4},"arr":[1,2],"empty":[],"dict":{}}`
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Fatalf("json mismatch (-want +got):\n%s", diff)
	}
}

func TestConvertToJSON(t *testing.T) {
	data, err := Marshal(dict("b", NewInteger(2), "a", Array{String("x")}), BinaryFormat)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := ConvertToJSON(data)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if string(got) != `{"b":2,"a":["x"]}` {
		t.Fatalf("unexpected json %s", got)
	}
}

func TestToJSONRejectsNonFinite(t *testing.T) {
	if _, err := ToJSON(Array{Real(math.Inf(1))}); !IsKind(err, KindUnrepresentable) {
		t.Fatalf("expected unrepresentable, got %v", err)
	}
}

func TestDescribe(t *testing.T) {
	tree := dict(
		"name", String("Sword"),
		"stats", Array{NewInteger(1), NewUnsignedInteger(math.MaxUint64)},
		"blob", Data{0xca, 0xfe},
		"ref", UID(3),
	)
	want := "dict{\n" +
		"\t[name]: string(Sword)\n" +
		"\t[stats]: array{\n" +
		"\t\t[0]: int64(1)\n" +
		"\t\t[1]: uint64(18446744073709551615)\n" +
		"\t}\n" +
		"\t[blob]: []byte(cafe)\n" +
		"\t[ref]: UID(3)\n" +
		"}\n"
	if diff := cmp.Diff(want, Describe(tree)); diff != "" {
		t.Fatalf("describe mismatch (-want +got):\n%s", diff)
	}
}
