package review

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"reviewdesk/internal/domain"
	"reviewdesk/internal/reconcile"
)

// Buffer is the deep-cloned working copy of the project under review. Edits
// land here first; nothing touches the system of record until an explicit
// save. Each update is a single clone-and-replace, so a reader never observes
// a partially applied write.
type Buffer struct {
	project *domain.AnnotatedProject
	dirty   bool
}

func NewBuffer(p domain.AnnotatedProject) *Buffer {
	cp := p.Clone()
	return &Buffer{project: &cp}
}

// Project returns the live working copy.
func (b *Buffer) Project() *domain.AnnotatedProject { return b.project }

// Snapshot returns an independent clone.
func (b *Buffer) Snapshot() domain.AnnotatedProject { return b.project.Clone() }

func (b *Buffer) Dirty() bool { return b.dirty }

func (b *Buffer) MarkClean() { b.dirty = false }

// Restore replaces the working copy wholesale, e.g. from a persisted draft.
func (b *Buffer) Restore(p domain.AnnotatedProject, dirty bool) {
	cp := p.Clone()
	b.project = &cp
	b.dirty = dirty
}

// Reannotate re-runs the reconciliation pass against a corrected request set.
// The dirty flag is untouched: annotations are derived, not edits.
func (b *Buffer) Reannotate(reqs []domain.DeletionRequest) {
	next := reconcile.Annotated(*b.project, reqs)
	b.project = &next
}

// Update sets a leaf addressed by a dotted, indexed path such as
// "stages[0].tasks[2].title" or "stages[1].gate.payload.rubric". Intermediate
// containers are created as needed. The value is applied onto a JSON view of
// the project and decoded back into the typed tree; a type mismatch rejects
// the whole update and leaves the buffer unchanged.
func (b *Buffer) Update(path string, value any) error {
	segs, err := parsePath(path)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(b.project)
	if err != nil {
		return fmt.Errorf("encode buffer: %w", err)
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("decode buffer: %w", err)
	}
	if err := setPath(tree, segs, value); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	merged, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}
	next := &domain.AnnotatedProject{}
	if err := json.Unmarshal(merged, next); err != nil {
		return fmt.Errorf("apply %s: %w", path, err)
	}
	// A path whose key matches no typed field survives the map edit but is
	// dropped when decoding back into the tree. Re-encode and require the
	// leaf to be present, so a typo fails instead of dirtying the buffer
	// with a no-op. Empty values are exempt: omitempty elides them even on
	// valid fields.
	if !emptyJSONValue(value) {
		applied, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("verify %s: %w", path, err)
		}
		var check map[string]any
		if err := json.Unmarshal(applied, &check); err != nil {
			return fmt.Errorf("verify %s: %w", path, err)
		}
		if _, ok := lookupPath(check, segs); !ok {
			return fmt.Errorf("set %s: no such field", path)
		}
	}
	b.project = next
	b.dirty = true
	return nil
}

func lookupPath(root map[string]any, segs []segment) (any, bool) {
	var cur any = root
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg.key]
		if !ok {
			return nil, false
		}
		if seg.hasIndex {
			arr, ok := v.([]any)
			if !ok || seg.index >= len(arr) {
				return nil, false
			}
			v = arr[seg.index]
		}
		cur = v
	}
	return cur, true
}

func emptyJSONValue(value any) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		return false
	}
	switch string(raw) {
	case "null", `""`, "false", "0", "{}", "[]":
		return true
	}
	return false
}

type segment struct {
	key      string
	index    int
	hasIndex bool
}

func parsePath(path string) ([]segment, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("empty path")
	}
	parts := strings.Split(path, ".")
	segs := make([]segment, 0, len(parts))
	for _, part := range parts {
		seg := segment{key: part}
		if open := strings.IndexByte(part, '['); open >= 0 {
			if !strings.HasSuffix(part, "]") {
				return nil, fmt.Errorf("malformed segment %q", part)
			}
			idx, err := strconv.Atoi(part[open+1 : len(part)-1])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("malformed index in %q", part)
			}
			seg.key = part[:open]
			seg.index = idx
			seg.hasIndex = true
		}
		if seg.key == "" {
			return nil, fmt.Errorf("empty segment in %q", path)
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

func setPath(root map[string]any, segs []segment, value any) error {
	var cur any = root
	for i, seg := range segs {
		last := i == len(segs)-1
		m, ok := cur.(map[string]any)
		if !ok {
			return fmt.Errorf("segment %q: parent is not an object", seg.key)
		}
		if !seg.hasIndex {
			if last {
				m[seg.key] = value
				return nil
			}
			child, ok := m[seg.key].(map[string]any)
			if !ok || m[seg.key] == nil {
				child = map[string]any{}
				m[seg.key] = child
			}
			cur = child
			continue
		}
		arr, ok := m[seg.key].([]any)
		if !ok {
			if m[seg.key] != nil {
				return fmt.Errorf("segment %q: not an array", seg.key)
			}
			arr = []any{}
		}
		for len(arr) <= seg.index {
			arr = append(arr, nil)
		}
		m[seg.key] = arr
		if last {
			arr[seg.index] = value
			return nil
		}
		elem, ok := arr[seg.index].(map[string]any)
		if !ok || arr[seg.index] == nil {
			elem = map[string]any{}
			arr[seg.index] = elem
		}
		cur = elem
	}
	return nil
}
