// Package merge interleaves the annotations of a scene into a class file.
// It runs in two phases: IndexCallSites scans every method's instructions
// and classifies invokedynamic call sites, then a SceneWriter streams once
// through the class's structural callbacks and emits the scene's
// annotations at one-shot gate points.
package merge

import (
	"github.com/markro49/annotation-tools/classfile"
)

// offsetSentinel marks a walker whose method has ended; the offset must
// not be read past that point.
const offsetSentinel = -1

// offsetWalker tracks the byte offset of the instruction currently being
// observed during a method traversal. Most instructions advance by a fixed
// length per opcode; the two switch instructions pad to a 4-byte boundary
// relative to the code array start and embed their own lengths, which the
// walker reads back out of the raw class buffer.
type offsetWalker struct {
	r         *classfile.Reader
	codeStart int // absolute offset of the code array in the class buffer
	offset    int
}

func newOffsetWalker(r *classfile.Reader, codeStart int) *offsetWalker {
	return &offsetWalker{r: r, codeStart: codeStart}
}

// current returns the offset of the instruction whose callback is firing.
func (w *offsetWalker) current() int {
	return w.offset
}

// advance moves past a fixed-length instruction.
func (w *offsetWalker) advance(op classfile.Opcode) {
	w.offset += op.InstructionLen()
}

// advanceBy moves past an instruction of explicit length (wide prefix
// forms, whose length depends on the prefixed opcode).
func (w *offsetWalker) advanceBy(n int) {
	w.offset += n
}

// advanceSwitch moves past a tableswitch or lookupswitch. The operand
// block starts at the next 4-byte boundary measured from the start of the
// code array; its extent is read from the raw class bytes because the
// decoded callback no longer carries the padding.
func (w *offsetWalker) advanceSwitch(op classfile.Opcode) {
	aligned := (w.offset + 4) &^ 3
	base := w.codeStart + aligned
	if op == classfile.OpTableSwitch {
		low := w.r.ReadInt(base + 4)
		high := w.r.ReadInt(base + 8)
		w.offset = aligned + 12 + 4*(high-low+1)
	} else {
		n := w.r.ReadInt(base + 4)
		w.offset = aligned + 8 + 8*n
	}
}

// end invalidates the walker once the method is done.
func (w *offsetWalker) end() {
	w.offset = offsetSentinel
}
