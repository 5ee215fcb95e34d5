package spell

import (
	"fmt"
	"regexp"
	"strings"
)

var spellIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Descriptor is the registry entry for a discovered spell. It is populated
// from the script's declared Meta record and is immutable between rescans.
type Descriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Category    string `json:"category,omitempty"`
	ScriptPath  string `json:"scriptFile"`
}

// DescriptorFromMeta validates a script's Meta record and binds it to the
// script path. A missing or invalid id yields ErrNoMeta so discovery can skip
// the script instead of failing the scan.
func DescriptorFromMeta(meta map[string]string, scriptPath string) (Descriptor, error) {
	if len(meta) == 0 {
		return Descriptor{}, ErrNoMeta
	}
	id := strings.TrimSpace(meta["id"])
	if id == "" {
		return Descriptor{}, fmt.Errorf("%w: id is required", ErrNoMeta)
	}
	if !spellIDPattern.MatchString(id) {
		return Descriptor{}, fmt.Errorf("%w: invalid id %q", ErrNoMeta, id)
	}
	d := Descriptor{
		ID:          id,
		Name:        strings.TrimSpace(meta["name"]),
		Description: strings.TrimSpace(meta["description"]),
		Icon:        meta["icon"],
		Category:    strings.TrimSpace(meta["category"]),
		ScriptPath:  scriptPath,
	}
	if d.Name == "" {
		d.Name = d.ID
	}
	return d, nil
}
