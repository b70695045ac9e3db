package commands

import (
	"fmt"

	"github.com/bryanchriswhite/FocusRecorder/internal/project"
	"github.com/bryanchriswhite/FocusRecorder/internal/recording"
	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert PATH",
	Short: "Convert a recording into a cached project",
	Long: `Convert a finished recording directory into a multi-track cached project.

The frame stream is moved into the project's frame sequence, cursor and
keyboard events become their own tracks. The recording is deleted after a
successful conversion unless --keep is given.`,
	Example: `  # Convert a recording next to where it lives
  focusrecorder convert ~/.cache/focusrecorder/Recording/2025-01-31-10-15-00

  # Convert into another cache directory, keeping the source
  focusrecorder convert ./rec --cache-dir ./projects --keep`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

var (
	convertName     string
	convertCacheDir string
	convertKeep     bool
)

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringVarP(&convertName, "name", "n", "", "project name (default: the recording directory name)")
	convertCmd.Flags().StringVar(&convertCacheDir, "cache-dir", "", "parent of the project directory (default: the recording's cache directory)")
	convertCmd.Flags().BoolVar(&convertKeep, "keep", false, "keep the recording after converting")
}

func runConvert(cmd *cobra.Command, args []string) error {
	rec, err := recording.Read(args[0], nil)
	if err != nil {
		return fmt.Errorf("failed to read recording: %w", err)
	}

	p, err := project.Convert(cmd.Context(), rec, project.Options{
		CacheDir:      convertCacheDir,
		Name:          convertName,
		KeepRecording: convertKeep,
	})
	if err != nil {
		return fmt.Errorf("failed to convert recording: %w", err)
	}

	fmt.Printf("✅ Converted %d frames into %d tracks\n", len(rec.Frames), len(p.Tracks))
	fmt.Println(p.Root)
	return nil
}
