package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"meshfuzz/internal/meshdiff"
	"meshfuzz/internal/meshfmt"
	"meshfuzz/internal/mutate"
	"meshfuzz/internal/observ"
	"meshfuzz/internal/oracle"
	"meshfuzz/internal/scene"
	"meshfuzz/internal/testkit"
)

var checkCmd = &cobra.Command{
	Use:   "check <file.mfx>",
	Short: "Load a single file, validate it and optionally diff it",
	Args:  cobra.ExactArgs(1),
	RunE:  checkExecution,
}

func init() {
	checkCmd.Flags().String("obj", "", "reference .obj to diff against")
	checkCmd.Flags().String("dump-obj", "", "write the loaded geometry as .obj")
	checkCmd.Flags().Float64("unit", 0, "convert to this many meters per unit")
	checkCmd.Flags().Bool("flip-handedness", false, "convert between left- and right-handed axes")
}

func checkExecution(cmd *cobra.Command, args []string) error {
	objPath, err := cmd.Flags().GetString("obj")
	if err != nil {
		return err
	}
	dumpPath, err := cmd.Flags().GetString("dump-obj")
	if err != nil {
		return err
	}
	unit, err := cmd.Flags().GetFloat64("unit")
	if err != nil {
		return err
	}
	flip, err := cmd.Flags().GetBool("flip-handedness")
	if err != nil {
		return err
	}
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}
	if objPath != "" && (unit > 0 || flip) {
		return fmt.Errorf("--obj compares file axes; drop --unit and --flip-handedness")
	}

	cleanupProf, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer cleanupProf()

	path := args[0]
	data, err := os.ReadFile(path) // #nosec G304 -- path is the user's argument
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	timer := observ.NewTimer()

	loader := scene.LoaderFunc(func(data []byte, _ scene.LoadOptions) (*scene.Scene, error) {
		return meshfmt.Load(data, scene.LoadOptions{TargetUnitMeters: unit, ConvertHandedness: flip})
	})
	idx := timer.Begin("load")
	res := mutate.Trial(loader, mutate.Candidate{Data: data}, testkit.CheckScene)
	timer.EndItems(idx, len(data), res.Kind.String())
	switch res.Kind {
	case mutate.OutcomeLoaded:
	case mutate.OutcomeFailed:
		fmt.Fprintf(out, "%s: failed to load\n%s\n", path, res.Err.Stack())
		return fmt.Errorf("%s: %w", filepath.Base(path), res.Err)
	default:
		if len(res.Stack) > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", res.Stack)
		}
		return fmt.Errorf("%s: %s: %s", filepath.Base(path), res.Kind, res.Detail)
	}

	s := res.Scene
	printSceneStats(out, path, len(data), s, timer.Report().Phases[idx].DurationMS)

	if objPath != "" {
		var acc meshdiff.Accumulator
		err := timer.Measure("diff", func() error {
			ref, err := os.ReadFile(objPath) // #nosec G304 -- path is the user's argument
			if err != nil {
				return err
			}
			meshes, err := oracle.Parse(ref, oracle.Options{})
			if err != nil {
				return err
			}
			return meshdiff.Diff(s, meshes, &acc, meshdiff.Options{})
		})
		if err != nil {
			return fmt.Errorf("diff %s: %w", filepath.Base(objPath), err)
		}
		fmt.Fprintf(out, "Diff %s\n", acc)
	}

	if dumpPath != "" {
		if err := timer.Measure("dump", func() error { return dumpOBJ(dumpPath, s) }); err != nil {
			return fmt.Errorf("dump %s: %w", dumpPath, err)
		}
		fmt.Fprintf(out, "wrote %s\n", dumpPath)
	}
	if showTimings {
		fmt.Fprint(out, timer.Summary())
	}
	return nil
}

func printSceneStats(out io.Writer, path string, size int, s *scene.Scene, loadMS float64) {
	md := s.Metadata
	enc := meshfmt.Binary
	if md.ASCII {
		enc = meshfmt.ASCII
	}
	faces, indices := 0, 0
	for _, m := range s.Meshes {
		faces += len(m.Faces)
		indices += m.NumIndices
	}
	fmt.Fprintf(out, "%s: version %d %s, creator %q, unit %gm\n", path, md.Version, enc, md.Creator, md.UnitMeters)
	fmt.Fprintf(out, "  %d nodes, %d meshes, %d materials, %d faces, %d indices\n",
		len(s.Nodes), len(s.Meshes), len(s.Materials), faces, indices)
	fmt.Fprintf(out, "Loaded in %.2fms: File %.1fkB, temp %.1fkB (%d allocs), result %.1fkB (%d allocs)\n",
		loadMS, float64(size)/1024, float64(md.TempMemory)/1024, md.TempAllocs, float64(md.ResultMemory)/1024, md.ResultAllocs)
}

func dumpOBJ(path string, s *scene.Scene) (err error) {
	f, err := os.Create(path) // #nosec G304 -- path is the user's argument
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	w := bufio.NewWriter(f)
	if err := oracle.Write(w, s); err != nil {
		return err
	}
	return w.Flush()
}
