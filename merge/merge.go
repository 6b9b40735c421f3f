package merge

import (
	"github.com/markro49/annotation-tools/classfile"
	"github.com/markro49/annotation-tools/scene"
)

// Merge rewrites one class file with the scene's annotations inserted.
// It runs both phases over the same parsed class: the call-site
// classification pass, then the annotation-writing pass.
func Merge(data []byte, sc *scene.Scene, opts Options) ([]byte, Stats, error) {
	r, err := classfile.NewReader(data)
	if err != nil {
		return nil, Stats{}, err
	}
	ix, err := IndexCallSites(r)
	if err != nil {
		return nil, Stats{}, err
	}
	w := NewSceneWriter(r, sc, ix, opts)
	if err := r.Accept(w); err != nil {
		return nil, Stats{}, err
	}
	out, err := w.ToBytes()
	if err != nil {
		return nil, Stats{}, err
	}
	return out, w.Stats(), nil
}
