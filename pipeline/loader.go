package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tliron/commonlog"

	"github.com/markro49/annotation-tools/scene"
)

// sceneCacheSize bounds the loader's in-memory cache. Scenes are shared
// across jobs in a batch, so the same file is usually requested many times.
const sceneCacheSize = 128

// SceneLoader reads scene files with an LRU cache in front. YAML sources
// optionally keep a binary .cbor twin next to them: it is read instead of
// the YAML when it is at least as new, and refreshed after a YAML parse.
type SceneLoader struct {
	cache      *lru.Cache[string, *scene.Scene]
	cacheAside bool
	log        commonlog.Logger
}

// NewSceneLoader builds a loader. cacheAside enables the .cbor twin files.
func NewSceneLoader(cacheAside bool, log commonlog.Logger) (*SceneLoader, error) {
	cache, err := lru.New[string, *scene.Scene](sceneCacheSize)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = commonlog.GetLogger("pipeline")
	}
	return &SceneLoader{cache: cache, cacheAside: cacheAside, log: log}, nil
}

// Load reads one scene file (.yaml or .cbor).
func (l *SceneLoader) Load(path string) (*scene.Scene, error) {
	if sc, ok := l.cache.Get(path); ok {
		return sc, nil
	}
	sc, err := l.read(path)
	if err != nil {
		return nil, err
	}
	l.cache.Add(path, sc)
	return sc, nil
}

func (l *SceneLoader) read(path string) (*scene.Scene, error) {
	ext := filepath.Ext(path)
	if ext == ".cbor" {
		return scene.LoadWireFile(path)
	}

	twin := strings.TrimSuffix(path, ext) + ".cbor"
	if l.cacheAside && upToDate(twin, path) {
		sc, err := scene.LoadWireFile(twin)
		if err == nil {
			return sc, nil
		}
		l.log.Warningf("stale cache %s: %v", twin, err)
	}

	sc, err := scene.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if l.cacheAside {
		if err := sc.SaveWireFile(twin); err != nil {
			l.log.Warningf("cannot write cache %s: %v", twin, err)
		}
	}
	return sc, nil
}

// upToDate reports whether the cache file exists and is at least as new
// as the source.
func upToDate(cache, source string) bool {
	ci, err := os.Stat(cache)
	if err != nil {
		return false
	}
	si, err := os.Stat(source)
	if err != nil {
		return false
	}
	return !ci.ModTime().Before(si.ModTime())
}

// loadCombined reads every scene file and overlays them left to right
// into one scene.
func (l *SceneLoader) loadCombined(paths []string) (*scene.Scene, error) {
	combined := &scene.Scene{Classes: map[string]*scene.ClassSite{}}
	for _, p := range paths {
		sc, err := l.Load(p)
		if err != nil {
			return nil, fmt.Errorf("loading scene %s: %w", p, err)
		}
		overlayScene(combined, sc)
	}
	return combined, nil
}

// overlayScene folds src into dst. New classes are taken as copies; for
// classes present in both, class-level annotation lists are appended and
// members missing from dst are adopted. Members present in both keep
// dst's version, so earlier scene files win member collisions. src stays
// untouched: it is usually a cached scene shared across jobs.
func overlayScene(dst, src *scene.Scene) {
	for name, cls := range src.Classes {
		have, ok := dst.Classes[name]
		if !ok {
			dst.Classes[name] = copyClassSite(cls)
			continue
		}
		have.Annotations = append(have.Annotations, cls.Annotations...)
		have.Bounds = append(have.Bounds, cls.Bounds...)
		have.Extends = append(have.Extends, cls.Extends...)
		for f, site := range cls.Fields {
			if have.Fields == nil {
				have.Fields = map[string]*scene.MemberSite{}
			}
			if _, ok := have.Fields[f]; !ok {
				have.Fields[f] = site
			}
		}
		for m, site := range cls.Methods {
			if have.Methods == nil {
				have.Methods = map[string]*scene.MethodSite{}
			}
			if _, ok := have.Methods[m]; !ok {
				have.Methods[m] = site
			}
		}
	}
}

// copyClassSite clones the class-level slices and member maps of cls.
// Member sites themselves are shared: the overlay never writes into them.
func copyClassSite(cls *scene.ClassSite) *scene.ClassSite {
	cp := &scene.ClassSite{
		Annotations: append([]scene.Annotation(nil), cls.Annotations...),
		Bounds:      append([]scene.BoundSite(nil), cls.Bounds...),
		Extends:     append([]scene.SuperSite(nil), cls.Extends...),
	}
	if len(cls.Fields) > 0 {
		cp.Fields = make(map[string]*scene.MemberSite, len(cls.Fields))
		for f, site := range cls.Fields {
			cp.Fields[f] = site
		}
	}
	if len(cls.Methods) > 0 {
		cp.Methods = make(map[string]*scene.MethodSite, len(cls.Methods))
		for m, site := range cls.Methods {
			cp.Methods[m] = site
		}
	}
	return cp
}
