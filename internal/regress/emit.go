package regress

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
)

// maxDescription is the longest description kept in an emitted table,
// including the "..." marker.
const maxDescription = 56

// tableSchema is the schema of TOML check tables.
const tableSchema = 1

func shortDescription(s string) string {
	if len(s) <= maxDescription {
		return s
	}
	cut := maxDescription - len("...")
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// WriteGo writes checks as the body of known_checks.go.
func WriteGo(w io.Writer, checks []Check) error {
	bw := bufio.NewWriter(w)
	usesPatch := false
	for _, c := range checks {
		if c.Patch != nil {
			usesPatch = true
			break
		}
	}

	bw.WriteString("// Code generated by \"meshfuzz run --fuzz\"; DO NOT EDIT.\n\n")
	bw.WriteString("package regress\n\n")
	if usesPatch {
		bw.WriteString("import \"meshfuzz/internal/mutate\"\n\n")
	}
	if len(checks) == 0 {
		bw.WriteString("var knownChecks = []Check{}\n")
		return bw.Flush()
	}
	bw.WriteString("var knownChecks = []Check{\n")
	for _, c := range checks {
		fields := []string{
			"Case: " + strconv.Quote(c.Case),
			"Version: " + strconv.FormatUint(uint64(c.Version), 10),
			fmt.Sprintf("Site: %#x", c.Site),
		}
		if c.Patch != nil {
			fields = append(fields, fmt.Sprintf("Patch: &mutate.BytePatch{Offset: %d, Value: 0x%02x}", c.Patch.Offset, c.Patch.Value))
		}
		if c.TempLimit != nil {
			fields = append(fields, fmt.Sprintf("TempLimit: limit(%d)", *c.TempLimit))
		}
		if c.ResultLimit != nil {
			fields = append(fields, fmt.Sprintf("ResultLimit: limit(%d)", *c.ResultLimit))
		}
		if c.Truncate > 0 {
			fields = append(fields, fmt.Sprintf("Truncate: %d", c.Truncate))
		}
		fields = append(fields, "Description: "+strconv.Quote(shortDescription(c.Description)))
		fmt.Fprintf(bw, "\t{%s},\n", strings.Join(fields, ", "))
	}
	bw.WriteString("}\n")
	return bw.Flush()
}

type checkTable struct {
	Schema int     `toml:"schema"`
	Checks []Check `toml:"check"`
}

// WriteTOML writes checks as a TOML table readable by LoadTOML.
func WriteTOML(w io.Writer, checks []Check) error {
	out := make([]Check, len(checks))
	for i, c := range checks {
		c.Description = shortDescription(c.Description)
		out[i] = c
	}
	return toml.NewEncoder(w).Encode(checkTable{Schema: tableSchema, Checks: out})
}

// DecodeTOML parses a check table.
func DecodeTOML(r io.Reader) ([]Check, error) {
	var table checkTable
	meta, err := toml.NewDecoder(r).Decode(&table)
	if err != nil {
		return nil, fmt.Errorf("failed to parse check table: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("check table: unknown key %q", undecoded[0].String())
	}
	if !meta.IsDefined("schema") {
		return nil, errors.New("check table: missing schema")
	}
	if table.Schema != tableSchema {
		return nil, fmt.Errorf("check table: unsupported schema %d", table.Schema)
	}
	for i, c := range table.Checks {
		if c.Case == "" {
			return nil, fmt.Errorf("check table: check %d has no case", i+1)
		}
		if c.Patch != nil && c.Patch.Offset < 0 {
			return nil, fmt.Errorf("check table: check %d has negative patch offset", i+1)
		}
	}
	return table.Checks, nil
}

// LoadTOML reads a check table from path.
func LoadTOML(path string) ([]Check, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from the command line
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeTOML(f)
}

// KnownChecks returns a copy of the compiled-in replay table.
func KnownChecks() []Check {
	out := make([]Check, len(knownChecks))
	copy(out, knownChecks)
	return out
}
