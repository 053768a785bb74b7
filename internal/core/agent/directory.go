package agent

import (
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/penwyp/go-agent-timeline/internal/core/model"
)

// fallbackPalette holds the neutral color tokens assigned to sources the
// directory has no metadata for. The pick is a stable hash of the identifier
// so the same unknown source always renders the same color.
var fallbackPalette = []string{"36", "35", "33", "32", "34", "96", "95", "93"}

const mainColorToken = "94"

// Directory resolves an opaque source identifier to display metadata.
// It is a pure lookup: resolution never mutates registered entries.
type Directory struct {
	mu     sync.RWMutex
	agents map[model.Source]model.AgentInfo
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		agents: make(map[model.Source]model.AgentInfo),
	}
}

// Register records display metadata for one source. Re-registering a source
// replaces its previous entry.
func (d *Directory) Register(info model.AgentInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.agents[info.ID] = info
}

// RegisterAll records metadata for every source in the map.
func (d *Directory) RegisterAll(infos map[model.Source]model.AgentInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, info := range infos {
		info.ID = id
		d.agents[id] = info
	}
}

// Known reports whether the directory holds metadata for the source.
func (d *Directory) Known(src model.Source) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.agents[src]
	return ok
}

// Resolve returns display metadata for a source. A miss falls back to a
// deterministic default derived from the identifier; it is never an error.
func (d *Directory) Resolve(src model.Source) model.AgentInfo {
	d.mu.RLock()
	info, ok := d.agents[src]
	d.mu.RUnlock()
	if ok {
		if info.Initials == "" {
			info.Initials = Initials(info.DisplayName)
		}
		if info.ColorToken == "" {
			info.ColorToken = colorFor(string(src))
		}
		return info
	}

	if src.IsMain() {
		return model.AgentInfo{
			ID:          src,
			DisplayName: "Main Agent",
			ColorToken:  mainColorToken,
			Initials:    "MA",
		}
	}

	return model.AgentInfo{
		ID:          src,
		DisplayName: string(src),
		ColorToken:  colorFor(string(src)),
		Initials:    Initials(string(src)),
	}
}

// SplitTypedName splits a typed agent identifier of the form "domain:name"
// into its parts. Identifiers without a domain return an empty domain.
func SplitTypedName(typed string) (domain, name string) {
	if idx := strings.IndexByte(typed, ':'); idx >= 0 {
		return typed[:idx], typed[idx+1:]
	}
	return "", typed
}

// Initials derives up to two display initials from a name. Word boundaries
// win over leading characters; separators count as boundaries.
func Initials(name string) string {
	var out []rune
	newWord := true
	for _, r := range name {
		if r == ' ' || r == '-' || r == '_' || r == ':' || r == '.' {
			newWord = true
			continue
		}
		if newWord {
			out = append(out, unicode.ToUpper(r))
			newWord = false
			if len(out) == 2 {
				return string(out)
			}
		}
	}
	if len(out) == 1 {
		// Single word: take its first two characters.
		for i, r := range name {
			if i == 1 {
				out = append(out, unicode.ToUpper(r))
				break
			}
		}
	}
	if len(out) == 0 {
		return "??"
	}
	return string(out)
}

// colorFor picks a palette token from a stable hash of the identifier.
func colorFor(id string) string {
	h := fnv.New32a()
	h.Write([]byte(id))
	return fallbackPalette[h.Sum32()%uint32(len(fallbackPalette))]
}
