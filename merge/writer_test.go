package merge

import (
	"strings"
	"testing"

	"github.com/markro49/annotation-tools/classfile"
	"github.com/markro49/annotation-tools/scene"
)

func mergeAndDump(t *testing.T, data []byte, sc *scene.Scene, opts Options) (string, Stats) {
	t.Helper()
	out, stats, err := Merge(data, sc, opts)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	r, err := classfile.NewReader(out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	listing, err := classfile.Dump(r, true)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	return listing, stats
}

func wantLines(t *testing.T, listing string, fragments ...string) {
	t.Helper()
	for _, f := range fragments {
		if !strings.Contains(listing, f) {
			t.Errorf("listing missing %q\n%s", f, listing)
		}
	}
}

func marker(name string) scene.Annotation {
	return scene.Annotation{Name: name, Visible: true}
}

// buildAccountClass is the structural fixture: a class annotation, an
// array-typed field, two plain methods and one abstract method.
func buildAccountClass(t *testing.T) []byte {
	t.Helper()
	b := classfile.NewBuilder("demo/Account")
	av := b.Annotate("Ldemo/Tag;", true)
	av.Visit("value", "old")
	av.VisitAnnotationEnd()

	b.AddField(0x0002, "balance", "I")
	b.AddField(0x0002, "names", "[Ljava/lang/String;")

	get := b.AddMethod(0x0001, "get", "()I")
	get.Insn(classfile.OpIConst0)
	get.Insn(classfile.OpIReturn)

	set := b.AddMethod(0x0001, "set", "(I)V")
	set.AnnotateParam(0, "Ldemo/Positive;", true).VisitAnnotationEnd()
	set.Insn(classfile.OpReturn)

	b.AddMethod(0x0401, "todo", "()V") // abstract, no code

	data, err := b.Bytes()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return data
}

func TestMergeCoversEverySiteKind(t *testing.T) {
	sc := &scene.Scene{Classes: map[string]*scene.ClassSite{
		"demo.Account": {
			Annotations: []scene.Annotation{marker("demo.Entity")},
			Bounds: []scene.BoundSite{
				{ParamIndex: 0, BoundIndex: 1, Type: scene.TypeSite{Annotations: []scene.Annotation{marker("demo.NonNull")}}},
			},
			Fields: map[string]*scene.MemberSite{
				"names": {
					Annotations: []scene.Annotation{{Name: "demo.Max", Visible: false, Fields: map[string]scene.Value{"value": scene.Literal(10)}}},
					Type: scene.TypeSite{
						Annotations: []scene.Annotation{marker("demo.NonNull")},
						Inner: []scene.InnerType{
							{Path: "[", Annotations: []scene.Annotation{marker("demo.Deep")}},
						},
					},
				},
			},
			Methods: map[string]*scene.MethodSite{
				"get()I": {
					Annotations: []scene.Annotation{marker("demo.Pure")},
					Return:      scene.TypeSite{Annotations: []scene.Annotation{marker("demo.NonNull")}},
					Receiver: scene.MemberSite{
						Type: scene.TypeSite{Annotations: []scene.Annotation{marker("demo.Held")}},
					},
				},
				"set(I)V": {
					Params: map[int]*scene.MemberSite{
						0: {
							Annotations: []scene.Annotation{marker("demo.Checked")},
							Type:        scene.TypeSite{Annotations: []scene.Annotation{marker("demo.NonNull")}},
						},
					},
					Body: scene.Body{
						Locals: []scene.LocalSite{
							{
								Location: scene.LocalLocation{Start: 0, End: 1, Slot: 1},
								Type:     scene.TypeSite{Annotations: []scene.Annotation{marker("demo.NonNull")}},
							},
						},
					},
				},
			},
		},
	}}

	listing, stats := mergeAndDump(t, buildAccountClass(t), sc, Options{})

	wantLines(t, listing,
		"class: @Ldemo/Entity;",
		"class [type_param 0 bound 1]: @Ldemo/NonNull;",
		"field: @Ldemo/Max; (invisible)(value=10)",
		"field [field_type]: @Ldemo/NonNull;",
		"field [field_type path=[]: @Ldemo/Deep;",
		"method: @Ldemo/Pure;",
		"method [return_type]: @Ldemo/NonNull;",
		"method [receiver]: @Ldemo/Held;",
		"param 0: @Ldemo/Checked;",
		"method [param_type 0]: @Ldemo/NonNull;",
		"method [local 0..1/1]: @Ldemo/NonNull;",
	)
	want := Stats{Added: 11}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}

func TestMergeBoundIndexMinusOneTargetsTypeParam(t *testing.T) {
	sc := &scene.Scene{Classes: map[string]*scene.ClassSite{
		"demo.Account": {
			Bounds: []scene.BoundSite{
				{ParamIndex: 0, BoundIndex: -1, Type: scene.TypeSite{Annotations: []scene.Annotation{marker("demo.TP")}}},
			},
			Methods: map[string]*scene.MethodSite{
				"get()I": {
					Bounds: []scene.BoundSite{
						{ParamIndex: 1, BoundIndex: -1, Type: scene.TypeSite{Annotations: []scene.Annotation{marker("demo.MP")}}},
					},
				},
			},
		},
	}}

	listing, stats := mergeAndDump(t, buildAccountClass(t), sc, Options{})

	wantLines(t, listing,
		"class [type_param 0]: @Ldemo/TP;",
		"method [type_param 1]: @Ldemo/MP;",
	)
	if strings.Contains(listing, "bound 255") {
		t.Errorf("bound index -1 encoded as a bound entry\n%s", listing)
	}
	want := Stats{Added: 2}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}

func TestMergeDropsReceiverDeclarationAnnotations(t *testing.T) {
	sc := &scene.Scene{Classes: map[string]*scene.ClassSite{
		"demo.Account": {
			Methods: map[string]*scene.MethodSite{
				"get()I": {
					Receiver: scene.MemberSite{
						Annotations: []scene.Annotation{marker("demo.Held")},
						Type:        scene.TypeSite{Annotations: []scene.Annotation{marker("demo.NonNull")}},
					},
				},
			},
		},
	}}

	listing, stats := mergeAndDump(t, buildAccountClass(t), sc, Options{})

	wantLines(t, listing, "method [receiver]: @Ldemo/NonNull;")
	if strings.Contains(listing, "@Ldemo/Held;") {
		t.Errorf("receiver declaration annotation emitted\n%s", listing)
	}
	want := Stats{Added: 1, Dropped: 1}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}

func TestMergeGatesFireOnce(t *testing.T) {
	sc := &scene.Scene{Classes: map[string]*scene.ClassSite{
		"demo.Account": {
			Annotations: []scene.Annotation{marker("demo.Entity")},
			Fields: map[string]*scene.MemberSite{
				"balance": {Annotations: []scene.Annotation{marker("demo.Counted")}},
			},
			Methods: map[string]*scene.MethodSite{
				"get()I": {Annotations: []scene.Annotation{marker("demo.Pure")}},
			},
		},
	}}

	listing, _ := mergeAndDump(t, buildAccountClass(t), sc, Options{})

	for _, f := range []string{"@Ldemo/Entity;", "@Ldemo/Counted;", "@Ldemo/Pure;"} {
		if n := strings.Count(listing, f); n != 1 {
			t.Errorf("%s appears %d times, want 1\n%s", f, n, listing)
		}
	}
}

func TestMergePreserveKeepsOriginal(t *testing.T) {
	sc := &scene.Scene{Classes: map[string]*scene.ClassSite{
		"demo.Account": {
			Annotations: []scene.Annotation{
				{Name: "demo.Tag", Visible: true, Fields: map[string]scene.Value{"value": scene.Literal("new")}},
				marker("demo.Entity"),
			},
			Methods: map[string]*scene.MethodSite{
				"set(I)V": {
					Params: map[int]*scene.MemberSite{
						0: {Annotations: []scene.Annotation{marker("demo.Positive")}},
					},
				},
			},
		},
	}}

	listing, stats := mergeAndDump(t, buildAccountClass(t), sc, Options{})

	wantLines(t, listing, `class: @Ldemo/Tag;(value="old")`, "class: @Ldemo/Entity;")
	if strings.Contains(listing, `"new"`) {
		t.Errorf("scene copy written despite preserve policy\n%s", listing)
	}
	if n := strings.Count(listing, "@Ldemo/Positive;"); n != 1 {
		t.Errorf("parameter annotation appears %d times, want 1", n)
	}
	want := Stats{Added: 1, Skipped: 2}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}

func TestMergeOverwriteReplacesOriginal(t *testing.T) {
	sc := &scene.Scene{Classes: map[string]*scene.ClassSite{
		"demo.Account": {
			Annotations: []scene.Annotation{
				{Name: "demo.Tag", Visible: true, Fields: map[string]scene.Value{"value": scene.Literal("new")}},
			},
		},
	}}

	listing, stats := mergeAndDump(t, buildAccountClass(t), sc, Options{Overwrite: true})

	wantLines(t, listing, `class: @Ldemo/Tag;(value="new")`)
	if strings.Contains(listing, `"old"`) {
		t.Errorf("original survived overwrite\n%s", listing)
	}
	want := Stats{Added: 1}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}

func TestMergeDropsUnsupportedSites(t *testing.T) {
	sc := &scene.Scene{Classes: map[string]*scene.ClassSite{
		"demo.Account": {
			Extends: []scene.SuperSite{
				{Index: -1, Type: scene.TypeSite{Annotations: []scene.Annotation{marker("demo.NonNull")}}},
			},
			Methods: map[string]*scene.MethodSite{
				"todo()V": {
					Body: scene.Body{
						News: []scene.CodeSite{
							{Location: scene.CodeLocation{Offset: 0}, Type: scene.TypeSite{Annotations: []scene.Annotation{marker("demo.Fresh")}}},
						},
					},
				},
				"get()I": {
					Body: scene.Body{
						Locals: []scene.LocalSite{
							{
								Location: scene.LocalLocation{Name: "x", Source: true},
								Type:     scene.TypeSite{Annotations: []scene.Annotation{marker("demo.NonNull")}},
							},
						},
					},
				},
			},
		},
	}}

	listing, stats := mergeAndDump(t, buildAccountClass(t), sc, Options{})

	for _, f := range []string{"@Ldemo/NonNull;", "@Ldemo/Fresh;"} {
		if strings.Contains(listing, f) {
			t.Errorf("unsupported site emitted %s\n%s", f, listing)
		}
	}
	want := Stats{Dropped: 3}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}

// buildFlowClass anchors every body site kind at a known offset:
// new at 0, checkcast at 7, instanceof at 10, a constructor-reference
// invokedynamic at 14, a lambda at 20 and a plain reference at 26.
func buildFlowClass(t *testing.T) []byte {
	t.Helper()
	b := classfile.NewBuilder("demo/Flow")
	ctor := b.AddBootstrapMethod(metafactory(),
		classfile.MethodTypeToken{Desc: "()Ljava/lang/Object;"},
		classfile.Handle{Kind: 8, Owner: "demo/Thing", Name: "<init>", Desc: "()V"},
		classfile.MethodTypeToken{Desc: "()Ldemo/Thing;"},
	)
	lam := b.AddBootstrapMethod(metafactory(),
		classfile.MethodTypeToken{Desc: "(Ljava/lang/Object;)V"},
		classfile.Handle{Kind: 6, Owner: "demo/Flow", Name: "lambda$flow$0", Desc: "(Ldemo/Thing;)V"},
		classfile.MethodTypeToken{Desc: "(Ldemo/Thing;)V"},
	)
	plain := b.AddBootstrapMethod(metafactory(),
		classfile.MethodTypeToken{Desc: "(Ljava/lang/String;)Ljava/lang/String;"},
		classfile.Handle{Kind: 5, Owner: "java/lang/String", Name: "trim", Desc: "()Ljava/lang/String;"},
		classfile.MethodTypeToken{Desc: "(Ljava/lang/String;)Ljava/lang/String;"},
	)

	m := b.AddMethod(0x0001, "flow", "()V")
	m.TypeInsn(classfile.OpNew, "demo/Thing")                              // 0
	m.Insn(classfile.OpDup)                                                // 3
	m.MethodInsn(classfile.OpInvokeSpecial, "demo/Thing", "<init>", "()V") // 4
	m.TypeInsn(classfile.OpCheckCast, "demo/Thing")                        // 7
	m.TypeInsn(classfile.OpInstanceOf, "demo/Thing")                       // 10
	m.Insn(classfile.OpPop)                                                // 13
	m.InvokeDynamic("make", "()Ldemo/Supplier;", ctor)                     // 14
	m.Insn(classfile.OpPop)                                                // 19
	m.InvokeDynamic("accept", "()Ldemo/Consumer;", lam)                    // 20
	m.Insn(classfile.OpPop)                                                // 25
	m.InvokeDynamic("fmt", "()Ljava/util/function/Function;", plain)       // 26
	m.Insn(classfile.OpPop)                                                // 31
	m.Insn(classfile.OpReturn)                                             // 32

	data, err := b.Bytes()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return data
}

func TestMergeResolvesBodySites(t *testing.T) {
	nonNull := scene.TypeSite{Annotations: []scene.Annotation{marker("demo.NonNull")}}
	sc := &scene.Scene{Classes: map[string]*scene.ClassSite{
		"demo.Flow": {
			Methods: map[string]*scene.MethodSite{
				"flow()V": {
					Body: scene.Body{
						News:  []scene.CodeSite{{Location: scene.CodeLocation{Offset: 0}, Type: nonNull}},
						Casts: []scene.CodeSite{{Location: scene.CodeLocation{Offset: 7}, Type: nonNull}},
						Tests: []scene.CodeSite{{Location: scene.CodeLocation{Offset: 10}, Type: nonNull}},
						Refs: []scene.CodeSite{
							{Location: scene.CodeLocation{Offset: 14}, Type: nonNull},
							{Location: scene.CodeLocation{Offset: 26}, Type: nonNull},
						},
						Calls: []scene.CodeSite{
							{Location: scene.CodeLocation{Offset: 26}, Type: nonNull},
						},
						Lambdas: []scene.LambdaSite{
							{
								Location: scene.CodeLocation{Offset: 20},
								Method: &scene.MethodSite{
									Params: map[int]*scene.MemberSite{
										0: {
											Annotations: []scene.Annotation{marker("demo.Checked")},
											Type:        scene.TypeSite{Annotations: []scene.Annotation{marker("demo.Tainted")}},
										},
									},
								},
							},
						},
					},
				},
			},
		},
	}}

	listing, stats := mergeAndDump(t, buildFlowClass(t), sc, Options{})

	wantLines(t, listing,
		"method [new @0000]: @Ldemo/NonNull;",
		"method [cast @0007 arg 0]: @Ldemo/NonNull;",
		"method [instanceof @000A]: @Ldemo/NonNull;",
		"method [ctor_ref @000E]: @Ldemo/NonNull;",
		"method [method_ref @001A]: @Ldemo/NonNull;",
		"method [call_type_arg @001A arg 0]: @Ldemo/NonNull;",
		"method [param_type 0]: @Ldemo/Tainted;",
	)
	if strings.Contains(listing, "@Ldemo/Checked;") {
		t.Errorf("lambda parameter declaration annotation emitted\n%s", listing)
	}
	want := Stats{Added: 7, Dropped: 1}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}

func TestMergeRefAtLambdaOffsetIsDropped(t *testing.T) {
	sc := &scene.Scene{Classes: map[string]*scene.ClassSite{
		"demo.Flow": {
			Methods: map[string]*scene.MethodSite{
				"flow()V": {
					Body: scene.Body{
						Refs: []scene.CodeSite{
							{Location: scene.CodeLocation{Offset: 20}, Type: scene.TypeSite{Annotations: []scene.Annotation{marker("demo.R")}}},
						},
					},
				},
			},
		},
	}}

	listing, stats := mergeAndDump(t, buildFlowClass(t), sc, Options{})

	if strings.Contains(listing, "@Ldemo/R;") {
		t.Errorf("reference annotation emitted at a lambda offset\n%s", listing)
	}
	want := Stats{Dropped: 1}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}

func TestMergeEmitsStructuredValues(t *testing.T) {
	sc := &scene.Scene{Classes: map[string]*scene.ClassSite{
		"demo.Account": {
			Annotations: []scene.Annotation{
				{
					Name:    "demo.Meta",
					Visible: true,
					Fields: map[string]scene.Value{
						"cls":  scene.Class("demo.Thing"),
						"mode": scene.Enum("demo.Mode", "FAST"),
						"nested": {
							Kind: scene.KindAnnotation,
							Nested: &scene.Annotation{
								Name:   "demo.Inner",
								Fields: map[string]scene.Value{"n": scene.Literal(1)},
							},
						},
						"tags": scene.Array(scene.KindLiteral, scene.Literal("a"), scene.Literal(7)),
					},
				},
			},
		},
	}}

	listing, stats := mergeAndDump(t, buildAccountClass(t), sc, Options{})

	wantLines(t, listing,
		`class: @Ldemo/Meta;(cls=Ldemo/Thing;.class, mode=Ldemo/Mode;.FAST, nested=@Ldemo/Inner;(n=1), tags={"a", 7})`,
	)
	want := Stats{Added: 1}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}

func TestMergeWithoutSceneIsPassthrough(t *testing.T) {
	data := buildAccountClass(t)
	before, err := classfile.NewReader(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	wantListing, err := classfile.Dump(before, true)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}

	listing, stats := mergeAndDump(t, data, &scene.Scene{}, Options{})
	if listing != wantListing {
		t.Errorf("passthrough changed the class\nbefore:\n%s\nafter:\n%s", wantListing, listing)
	}
	if stats != (Stats{}) {
		t.Errorf("stats = %+v, want zero", stats)
	}
}
