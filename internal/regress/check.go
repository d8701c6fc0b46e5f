package regress

import (
	"fmt"
	"strings"

	"meshfuzz/internal/mutate"
	"meshfuzz/internal/scene"
)

// Check is one row of the replay table.
type Check struct {
	Case    string `toml:"case" msgpack:"case"`
	Version uint32 `toml:"version" msgpack:"version"`
	Site    uint32 `toml:"site" msgpack:"site"`

	Patch       *mutate.BytePatch `toml:"patch" msgpack:"patch,omitempty"`
	TempLimit   *int              `toml:"temp_limit" msgpack:"temp_limit,omitempty"`
	ResultLimit *int              `toml:"result_limit" msgpack:"result_limit,omitempty"`
	Truncate    int               `toml:"truncate,omitzero" msgpack:"truncate,omitempty"`

	Description string `toml:"description" msgpack:"description"`
}

// limit is used by generated tables.
func limit(n int) *int { return &n }

// Candidate returns the mutation the check replays. Data is left empty.
func (c Check) Candidate() mutate.Candidate {
	cand := mutate.Candidate{
		TempLimit:   scene.LimitFromPtr(c.TempLimit),
		ResultLimit: scene.LimitFromPtr(c.ResultLimit),
		Truncate:    c.Truncate,
	}
	if c.Patch != nil {
		p := *c.Patch
		cand.Patch = &p
	}
	return cand
}

// Matches reports whether the check belongs to the given case and version.
func (c Check) Matches(caseName string, version uint32) bool {
	return c.Case == caseName && c.Version == version
}

// Describe renders the mutation of the check for logs.
func (c Check) Describe() string {
	var parts []string
	if c.Patch != nil {
		parts = append(parts, fmt.Sprintf("patch byte %d to 0x%02x", c.Patch.Offset, c.Patch.Value))
	}
	if c.TempLimit != nil {
		parts = append(parts, fmt.Sprintf("temp limit %d", *c.TempLimit))
	}
	if c.ResultLimit != nil {
		parts = append(parts, fmt.Sprintf("result limit %d", *c.ResultLimit))
	}
	if c.Truncate > 0 {
		parts = append(parts, fmt.Sprintf("truncated length %d", c.Truncate))
	}
	if len(parts) == 0 {
		parts = append(parts, "unmodified")
	}
	return strings.Join(parts, ", ") + ": " + c.Description
}
