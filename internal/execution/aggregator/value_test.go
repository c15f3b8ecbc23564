package aggregator

import (
	"reflect"
	"testing"
)

func TestParseValueKinds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		kind ValueKind
	}{
		{"null", "null", KindNull},
		{"bool", "true", KindBool},
		{"number", "3.5", KindNumber},
		{"string", `"hi"`, KindString},
		{"array", "[1,2]", KindArray},
		{"object", `{"a":1}`, KindObject},
		{"garbage", "function() {}", KindUnrepresentable},
		{"empty", "", KindUnrepresentable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseValue(tc.raw); got.Kind != tc.kind {
				t.Errorf("ParseValue(%q).Kind = %v, want %v", tc.raw, got.Kind, tc.kind)
			}
		})
	}
}

func TestValueNativeRoundTrip(t *testing.T) {
	t.Parallel()

	value := ParseValue(`{"nums":[1,2],"ok":true,"name":"x","none":null}`)
	native := value.Native()
	want := map[string]interface{}{
		"nums": []interface{}{float64(1), float64(2)},
		"ok":   true,
		"name": "x",
		"none": nil,
	}
	if !reflect.DeepEqual(native, want) {
		t.Errorf("Native() = %#v, want %#v", native, want)
	}
}

func TestValueDisplaySafe(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"nested array", "[[1,2],[3]]", "[[1,2],[3]]"},
		{"object keys sorted", `{"b":2,"a":1}`, "{a:1,b:2}"},
		{"string unquoted", `"abc"`, "abc"},
		{"bool", "false", "false"},
		{"null", "null", "null"},
		{"number trims zeros", "2.50", "2.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseValue(tc.raw).DisplaySafe(); got != tc.want {
				t.Errorf("DisplaySafe(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestUnrepresentablePlaceholder(t *testing.T) {
	t.Parallel()

	value := Unrepresentable()
	if value.Native() != UnrepresentablePlaceholder {
		t.Errorf("Native() = %v, want placeholder", value.Native())
	}
	if value.DisplaySafe() != UnrepresentablePlaceholder {
		t.Errorf("DisplaySafe() = %v, want placeholder", value.DisplaySafe())
	}
}
