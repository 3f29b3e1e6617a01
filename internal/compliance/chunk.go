// Package compliance loads and chunks compliance-framework catalogue
// documents (NIST CSF, ISO 27001 Annex A) into retrievable units, and
// carries the static control catalogues used by coverage analysis.
package compliance

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Framework identifies which compliance catalogue a chunk or control id
// belongs to.
type Framework string

const (
	NISTCSF  Framework = "NIST_CSF"
	ISO27001 Framework = "ISO_27001"
)

// Chunk is a single retrievable excerpt of a compliance control, one
// paragraph or numbered subsection at a time. framework+control_id is not a
// unique key (a control may be chunked across multiple rows) but id is.
type Chunk struct {
	ID        string            `json:"id" yaml:"id"`
	Framework Framework         `json:"framework" yaml:"framework"`
	ControlID string            `json:"control_id" yaml:"control_id"`
	Title     string            `json:"title" yaml:"title"`
	Text      string            `json:"text" yaml:"text"`
	Position  int               `json:"position" yaml:"position"`
	Metadata  map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// GenerateID deterministically derives a chunk id from its framework,
// control id, and position within that control so that re-ingesting the
// same catalogue yields identical ids.
func GenerateID(framework Framework, controlID string, position int) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", framework, controlID, position)))
	return hex.EncodeToString(hash[:16])
}

// NewChunk builds a Chunk with its id computed from framework, control id,
// and position.
func NewChunk(framework Framework, controlID, title, text string, position int, metadata map[string]string) *Chunk {
	return &Chunk{
		ID:        GenerateID(framework, controlID, position),
		Framework: framework,
		ControlID: controlID,
		Title:     title,
		Text:      text,
		Position:  position,
		Metadata:  metadata,
	}
}

// FilterByFramework filters chunks by framework.
func FilterByFramework(chunks []*Chunk, framework Framework) []*Chunk {
	var result []*Chunk
	for _, c := range chunks {
		if c.Framework == framework {
			result = append(result, c)
		}
	}
	return result
}

// FilterByControlID filters chunks belonging to a single control.
func FilterByControlID(chunks []*Chunk, controlID string) []*Chunk {
	var result []*Chunk
	for _, c := range chunks {
		if c.ControlID == controlID {
			result = append(result, c)
		}
	}
	return result
}
