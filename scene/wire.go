package scene

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical encoding so the same scene always produces
// the same bytes, which keeps cached encodings comparable.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("scene: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalWire serializes the scene to canonical CBOR bytes.
func (s *Scene) MarshalWire() ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalWire deserializes a scene from CBOR bytes.
func UnmarshalWire(data []byte) (*Scene, error) {
	var s Scene
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("scene: unmarshal cbor: %w", err)
	}
	return &s, nil
}

// LoadWireFile reads a CBOR-encoded scene file.
func LoadWireFile(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scene: read %s: %w", path, err)
	}
	s, err := UnmarshalWire(data)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, path)
	}
	return s, nil
}

// SaveWireFile writes the scene as a CBOR file.
func (s *Scene) SaveWireFile(path string) error {
	data, err := s.MarshalWire()
	if err != nil {
		return fmt.Errorf("scene: marshal cbor: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("scene: write %s: %w", path, err)
	}
	return nil
}
