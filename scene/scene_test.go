package scene

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sampleScene() *Scene {
	return &Scene{
		Classes: map[string]*ClassSite{
			"demo.Widget": {
				Annotations: []Annotation{{
					Name:    "demo.Tag",
					Visible: true,
					Fields:  map[string]Value{"value": Literal("widget")},
				}},
				Fields: map[string]*MemberSite{
					"items": {
						Type: TypeSite{
							Annotations: []Annotation{{Name: "demo.NonNull", Visible: true}},
							Inner: []InnerType{{
								Path:        "[",
								Annotations: []Annotation{{Name: "demo.Interned"}},
							}},
						},
					},
				},
				Methods: map[string]*MethodSite{
					"run()V": {
						Annotations: []Annotation{{Name: "demo.Pure"}},
						Body: Body{
							News: []CodeSite{{
								Location: CodeLocation{Offset: 4},
								Type:     TypeSite{Annotations: []Annotation{{Name: "demo.Fresh"}}},
							}},
						},
					},
				},
			},
		},
	}
}

func TestLookupsAreNilSafe(t *testing.T) {
	var s *Scene
	if s.Class("demo.Widget") != nil {
		t.Error("nil scene returned a class")
	}

	var c *ClassSite
	if c.Field("x") != nil {
		t.Error("nil class returned a field")
	}
	if c.Method("run()V") != nil {
		t.Error("nil class returned a method")
	}

	var m *MethodSite
	if m.Param(0) != nil {
		t.Error("nil method returned a param")
	}
}

func TestClassLookupNormalizesNames(t *testing.T) {
	s := sampleScene()
	dotted := s.Class("demo.Widget")
	if dotted == nil {
		t.Fatal("dotted lookup failed")
	}
	if got := s.Class("demo/Widget"); got != dotted {
		t.Error("internal-name lookup diverged")
	}
	if got := s.Class("Ldemo/Widget;"); got != dotted {
		t.Error("descriptor lookup diverged")
	}
	if s.Class("demo.Missing") != nil {
		t.Error("missing class lookup succeeded")
	}
}

func TestNameConversions(t *testing.T) {
	cases := []struct {
		in, normalized, descriptor string
	}{
		{"demo.Widget", "demo.Widget", "Ldemo/Widget;"},
		{"demo/Widget", "demo.Widget", "Ldemo/Widget;"},
		{"Ldemo/Widget;", "demo.Widget", "Ldemo/Widget;"},
	}
	for _, c := range cases {
		if got := NormalizeName(c.in); got != c.normalized {
			t.Errorf("NormalizeName(%q) = %q, want %q", c.in, got, c.normalized)
		}
	}
	if got := Descriptor("demo.Widget"); got != "Ldemo/Widget;" {
		t.Errorf("Descriptor = %q", got)
	}
	if got := Descriptor("Ldemo/Widget;"); got != "Ldemo/Widget;" {
		t.Errorf("Descriptor passthrough = %q", got)
	}
	if got := Signature("run", "()V"); got != "run()V" {
		t.Errorf("Signature = %q", got)
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	s := sampleScene()
	data, err := s.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	back, err := Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(s, back); diff != "" {
		t.Errorf("yaml round trip (-want +got):\n%s", diff)
	}
}

func TestYAMLHandwritten(t *testing.T) {
	doc := `
classes:
  demo.Widget:
    annotations:
      - name: demo.Tag
        visible: true
        fields:
          value:
            kind: literal
            literal: 7
    methods:
      run()V:
        body:
          casts:
            - location: {offset: 12, typeIndex: 1}
              type:
                annotations:
                  - name: demo.Checked
`
	s, err := Load([]byte(doc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c := s.Class("demo.Widget")
	if c == nil {
		t.Fatal("class missing")
	}
	if len(c.Annotations) != 1 || c.Annotations[0].Name != "demo.Tag" {
		t.Fatalf("class annotations = %+v", c.Annotations)
	}
	v := c.Annotations[0].Fields["value"]
	if v.Kind != KindLiteral || v.Literal != 7 {
		t.Errorf("value = %+v", v)
	}
	m := c.Method("run()V")
	if m == nil {
		t.Fatal("method missing")
	}
	if len(m.Body.Casts) != 1 {
		t.Fatalf("casts = %+v", m.Body.Casts)
	}
	cast := m.Body.Casts[0]
	if cast.Location.Offset != 12 || cast.Location.TypeIndex != 1 {
		t.Errorf("cast location = %+v", cast.Location)
	}
}

func TestWireRoundTrip(t *testing.T) {
	s := sampleScene()
	data, err := s.MarshalWire()
	if err != nil {
		t.Fatalf("MarshalWire: %v", err)
	}
	back, err := UnmarshalWire(data)
	if err != nil {
		t.Fatalf("UnmarshalWire: %v", err)
	}
	if back.Class("demo.Widget") == nil {
		t.Fatal("class missing after wire round trip")
	}
	if got := back.Class("demo.Widget").Annotations[0].Fields["value"].Literal; got != "widget" {
		t.Errorf("literal = %v", got)
	}

	// Canonical mode: same scene, same bytes.
	again, err := s.MarshalWire()
	if err != nil {
		t.Fatalf("MarshalWire: %v", err)
	}
	if string(data) != string(again) {
		t.Error("canonical encoding is not deterministic")
	}
}

func TestSceneFiles(t *testing.T) {
	dir := t.TempDir()
	s := sampleScene()

	ypath := filepath.Join(dir, "widget.yaml")
	if err := s.SaveFile(ypath); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	fromYAML, err := LoadFile(ypath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if fromYAML.Class("demo.Widget") == nil {
		t.Error("class missing after yaml file round trip")
	}

	cpath := filepath.Join(dir, "widget.cbor")
	if err := s.SaveWireFile(cpath); err != nil {
		t.Fatalf("SaveWireFile: %v", err)
	}
	fromWire, err := LoadWireFile(cpath)
	if err != nil {
		t.Fatalf("LoadWireFile: %v", err)
	}
	if fromWire.Class("demo.Widget") == nil {
		t.Error("class missing after cbor file round trip")
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("loading a missing file succeeded")
	}
}
