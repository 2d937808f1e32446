package database

import (
	"encoding/json"
	"math"
	"path/filepath"
	"testing"
)

func TestValue_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		raw  string
		want Value
	}{
		{`"Computer Science"`, String("Computer Science")},
		{`3`, Number(3)},
		{`-0.5`, Number(-0.5)},
		{`true`, Bool(true)},
		{`false`, Bool(false)},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var v Value
			if err := json.Unmarshal([]byte(tt.raw), &v); err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", tt.raw, err)
			}
			if !v.Equal(tt.want) {
				t.Errorf("Unmarshal(%s) = %v (%s), want %v (%s)", tt.raw, v.Text(), v.Kind(), tt.want.Text(), tt.want.Kind())
			}
		})
	}
}

func TestValue_UnmarshalJSONRejectsOpenSchema(t *testing.T) {
	for _, raw := range []string{`{"a": 1}`, `[1, 2]`, `null`} {
		var md Metadata
		if err := json.Unmarshal([]byte(`{"k": `+raw+`}`), &md); err == nil {
			t.Errorf("Unmarshal(%s) error = nil, want error", raw)
		}
	}
}

func TestMetadataFromAny(t *testing.T) {
	md, err := MetadataFromAny(map[string]any{
		"name":        "Alice",
		"year":        float64(2),
		"roll_number": 17,
		"active":      true,
	})
	if err != nil {
		t.Fatalf("MetadataFromAny() error = %v", err)
	}
	if n, ok := md["roll_number"].Num(); !ok || n != 17 {
		t.Errorf("roll_number = %v, %v; want 17, true", n, ok)
	}
	if s, ok := md["name"].Str(); !ok || s != "Alice" {
		t.Errorf("name = %q, %v; want Alice, true", s, ok)
	}

	if _, err := MetadataFromAny(map[string]any{"tags": []string{"a"}}); err == nil {
		t.Error("MetadataFromAny(slice) error = nil, want error")
	}
	if _, err := MetadataFromAny(map[string]any{"": "x"}); err == nil {
		t.Error("MetadataFromAny(empty key) error = nil, want error")
	}
}

func TestMetadata_Validate(t *testing.T) {
	if err := (Metadata{"k": {}}).Validate(); err == nil {
		t.Error("Validate() with zero value = nil, want error")
	}
	if err := (Metadata{"k": Bool(false)}).Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
	for _, n := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if err := (Metadata{"k": Number(n)}).Validate(); err == nil {
			t.Errorf("Validate() with %v = nil, want error", n)
		}
	}
}

func TestMetadataFromAnyRejectsNonFinite(t *testing.T) {
	for _, n := range []float64{math.NaN(), math.Inf(1)} {
		if _, err := MetadataFromAny(map[string]any{"score": n}); err == nil {
			t.Errorf("MetadataFromAny(%v) error = nil, want error", n)
		}
	}
}

func TestIndex_NonFiniteMetadataNeverReachesSave(t *testing.T) {
	dir := t.TempDir()
	ix := newTestIndex(t, 2, MetricCosine, BackendFlat)
	if _, err := ix.Add([]float32{1, 0}, "a", Metadata{"name": Number(math.NaN())}); err == nil {
		t.Fatal("Add() with NaN metadata error = nil, want error")
	}
	if _, err := ix.Add([]float32{1, 0}, "a", Metadata{"name": String("NaN")}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := ix.Save(filepath.Join(dir, "g.vec"), filepath.Join(dir, "g.json")); err != nil {
		t.Errorf("Save() error = %v", err)
	}
}
