package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fortio.org/safecast"
	"github.com/spf13/cobra"

	"meshfuzz/internal/harness"
	"meshfuzz/internal/meshfmt"
	"meshfuzz/internal/oracle"
)

var genCmd = &cobra.Command{
	Use:   "gen <ref.obj>",
	Short: "Write .mfx fixtures for a reference .obj",
	Long: `Write <name>_<version>_<encoding>.mfx fixtures for every requested version
and both encodings. The case name is the .obj file name without extension.`,
	Args: cobra.ExactArgs(1),
	RunE: genExecution,
}

func init() {
	genCmd.Flags().StringP("output", "o", "", "output directory (default: next to the .obj)")
	genCmd.Flags().UintSlice("versions", nil, "format versions to write (default: all)")
}

func genExecution(cmd *cobra.Command, args []string) error {
	dir, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	rawVersions, err := cmd.Flags().GetUintSlice("versions")
	if err != nil {
		return err
	}
	versions := make([]uint32, 0, len(rawVersions))
	for _, v := range rawVersions {
		v32, convErr := safecast.Conv[uint32](v)
		if convErr != nil || !meshfmt.SupportsVersion(v32) {
			return fmt.Errorf("unsupported format version %d", v)
		}
		versions = append(versions, v32)
	}

	objPath := args[0]
	if filepath.Ext(objPath) != harness.OracleExt {
		return fmt.Errorf("%s: expected a %s file", objPath, harness.OracleExt)
	}
	if dir == "" {
		dir = filepath.Dir(objPath)
	}
	data, err := os.ReadFile(objPath) // #nosec G304 -- path is the user's argument
	if err != nil {
		return err
	}
	meshes, err := oracle.Parse(data, oracle.Options{})
	if err != nil {
		return err
	}
	if len(meshes) == 0 {
		return fmt.Errorf("%s: no groups", objPath)
	}
	name := strings.TrimSuffix(filepath.Base(objPath), harness.OracleExt)
	paths, err := harness.Generate(dir, name, meshes, versions)
	for _, p := range paths {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return err
}
