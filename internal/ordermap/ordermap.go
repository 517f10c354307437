// Package ordermap maintains the user-controlled sequence of files collected
// by the merge and scan workflows. The map is persisted beside the files as
// merge_order.json.
package ordermap

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"docbot/internal/fileutil"
)

// FileName is the side file holding the order map inside a task directory.
const FileName = "merge_order.json"

// ErrUnknownEntry reports a reorder request for a file that is not part of the map.
var ErrUnknownEntry = errors.New("entry not in order map")

// Map assigns each stored filename its 1-based position.
type Map map[string]int

// Load reads the order map from dir. A missing file yields an empty map.
func Load(dir string) (Map, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Map{}, nil
		}
		return nil, fmt.Errorf("read order map: %w", err)
	}
	m := Map{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode order map: %w", err)
	}
	return m, nil
}

// Save writes the order map into dir.
func (m Map) Save(dir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode order map: %w", err)
	}
	if err := fileutil.WriteFileAtomic(filepath.Join(dir, FileName), data, 0o644); err != nil {
		return fmt.Errorf("write order map: %w", err)
	}
	return nil
}

// Next returns the position a newly appended file receives.
func (m Map) Next() int {
	highest := 0
	for _, pos := range m {
		if pos > highest {
			highest = pos
		}
	}
	return highest + 1
}

// Add appends name at the end and returns its position. Adding an existing
// name keeps its current position.
func (m Map) Add(name string) int {
	if pos, ok := m[name]; ok {
		return pos
	}
	pos := m.Next()
	m[name] = pos
	return pos
}

// Remove drops name and closes the gap it leaves.
func (m Map) Remove(name string) {
	if _, ok := m[name]; !ok {
		return
	}
	delete(m, name)
	for i, entry := range m.Sorted() {
		m[entry] = i + 1
	}
}

// Sorted returns the filenames ordered by position, ties broken by name.
func (m Map) Sorted() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if m[names[i]] == m[names[j]] {
			return names[i] < names[j]
		}
		return m[names[i]] < m[names[j]]
	})
	return names
}

// Reorder returns a new map with target moved to position and every other
// entry renumbered densely around it, keeping their relative order. Positions
// beyond the end move target to the last slot.
func (m Map) Reorder(target string, position int) (Map, error) {
	if _, ok := m[target]; !ok {
		return nil, ErrUnknownEntry
	}
	if position < 1 {
		return nil, fmt.Errorf("position %d is not a positive number", position)
	}
	if position > len(m) {
		position = len(m)
	}

	others := make([]string, 0, len(m)-1)
	for _, name := range m.Sorted() {
		if name != target {
			others = append(others, name)
		}
	}

	out := make(Map, len(m))
	out[target] = position
	slot := 1
	for _, name := range others {
		if slot == position {
			slot++
		}
		out[name] = slot
		slot++
	}
	return out, nil
}

// ParsePosition validates a user supplied position such as "2".
// The error text is suitable for sending back to the user.
func ParsePosition(text string) (int, error) {
	trimmed := strings.TrimSpace(text)
	n, err := strconv.Atoi(trimmed)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("'%s' invalid positive number.", trimmed)
	}
	return n, nil
}

// IsPosition reports whether text looks like a bare reorder number.
func IsPosition(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	if trimmed[0] == '-' || trimmed[0] == '+' {
		trimmed = trimmed[1:]
	}
	if trimmed == "" {
		return false
	}
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
