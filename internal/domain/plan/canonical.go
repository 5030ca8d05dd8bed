package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// canonicalStep is a Step with its non-semantic fields stripped. Field order
// is fixed, so the JSON serialization of a canonical plan is deterministic.
type canonicalStep struct {
	Type       StepType `json:"type"`
	Path       string   `json:"path,omitempty"`
	OldContent *string  `json:"old_content,omitempty"`
	NewContent string   `json:"new_content,omitempty"`
	Command    string   `json:"command,omitempty"`
	Cwd        string   `json:"cwd,omitempty"`
}

// Canonical is the normalized form of a plan: command steps in their
// original relative order, file-edit steps sorted by path, summaries and
// descriptions stripped.
type Canonical struct {
	Commands []canonicalStep `json:"commands"`
	Edits    []canonicalStep `json:"edits"`
}

// Normalize produces the canonical form of a plan. Repeated calls on the
// same plan, and calls on plans that differ only in the ordering of
// independent file edits or in stripped fields, produce the same result.
func Normalize(p *Plan) Canonical {
	var c Canonical
	for _, s := range p.Steps {
		cs := canonicalStep{
			Type:       s.Type,
			Path:       s.Path,
			OldContent: s.OldContent,
			NewContent: s.NewContent,
			Command:    s.Command,
			Cwd:        s.Cwd,
		}
		switch s.Type {
		case StepTypeCommand:
			c.Commands = append(c.Commands, cs)
		default:
			c.Edits = append(c.Edits, cs)
		}
	}
	sort.SliceStable(c.Edits, func(i, j int) bool {
		return c.Edits[i].Path < c.Edits[j].Path
	})
	return c
}

// Hash returns the deterministic fingerprint of the plan: a sha256 hex
// digest of the canonical serialization. The hash changes iff the plan's
// semantic content changes.
func Hash(p *Plan) string {
	data, err := json.Marshal(Normalize(p))
	if err != nil {
		// Canonical only contains strings; Marshal cannot fail on it.
		panic("plan: canonical marshal: " + err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
