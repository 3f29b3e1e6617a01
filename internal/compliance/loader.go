package compliance

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// SourceControl is one control's raw prose as read from a catalogue source
// file, before chunking.
type SourceControl struct {
	ControlID string `yaml:"control_id"`
	Title     string `yaml:"title"`
	Text      string `yaml:"text"`
}

// sourceDoc is the on-disk manifest shape: a framework name plus its
// controls, in catalogue order.
type sourceDoc struct {
	Framework string          `yaml:"framework"`
	Controls  []SourceControl `yaml:"controls"`
}

var numberedSubsectionRegexp = regexp.MustCompile(`(?m)^\s*\d+(\.\d+)*[.)]\s+`)

// splitControlText splits a control's prose into retrievable units: one
// chunk per numbered subsection if the text contains at least two, else one chunk
// per paragraph (blank-line separated).
func splitControlText(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if locs := numberedSubsectionRegexp.FindAllStringIndex(text, -1); len(locs) > 1 {
		var parts []string
		for i, loc := range locs {
			start := loc[0]
			end := len(text)
			if i+1 < len(locs) {
				end = locs[i+1][0]
			}
			part := strings.TrimSpace(text[start:end])
			if part != "" {
				parts = append(parts, part)
			}
		}
		return parts
	}

	paragraphs := strings.Split(text, "\n\n")
	var parts []string
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// LoadDirectory reads every `*.yaml`/`*.yml` catalogue manifest in dir (each
// describing one framework's controls, in catalogue order) and chunks them.
// Chunks are stable-ordered: insertion order equals catalogue order, which
// equals file-then-control-then-subsection order.
func LoadDirectory(dir string) ([]*Chunk, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("compliance: reading catalogue directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var chunks []*Chunk
	for _, name := range names {
		fileChunks, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, fileChunks...)
	}
	return chunks, nil
}

// LoadFile reads and chunks a single catalogue manifest file.
func LoadFile(path string) ([]*Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("compliance: opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var doc sourceDoc
	dec := yaml.NewDecoder(bufio.NewReader(f))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("compliance: decoding %s: %w", path, err)
	}

	framework := Framework(doc.Framework)
	var chunks []*Chunk
	for _, ctrl := range doc.Controls {
		parts := splitControlText(ctrl.Text)
		if len(parts) == 0 {
			parts = []string{""}
		}
		for pos, part := range parts {
			chunks = append(chunks, NewChunk(framework, ctrl.ControlID, ctrl.Title, part, pos, map[string]string{
				"source_file": filepath.Base(path),
			}))
		}
	}
	return chunks, nil
}
