package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/bryanchriswhite/FocusRecorder/internal/logger"
	"github.com/bryanchriswhite/FocusRecorder/internal/project"
	"github.com/bryanchriswhite/FocusRecorder/internal/recording"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recordings and cached projects",
	Long: `List the recordings and cached projects in the cache directory.

Directories that cannot be read (for example a recording still being
written or left behind by a crash) are listed with their error.`,
	Example: `  # List everything in table format (default)
  focusrecorder list

  # List in JSON format
  focusrecorder list --format json

  # List only cached projects
  focusrecorder list --projects`,
	RunE: runList,
}

var (
	listFormat   string
	listProjects bool
	listCacheDir string
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format (table or json)")
	listCmd.Flags().BoolVarP(&listProjects, "projects", "p", false, "show only cached projects")
	listCmd.Flags().StringVar(&listCacheDir, "cache-dir", "", "cache directory (default: from config)")
}

// Entry is one listed recording or project.
type Entry struct {
	Kind     string        `json:"kind"`
	Path     string        `json:"path"`
	Created  time.Time     `json:"created"`
	Frames   int           `json:"frames"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// listEntries reads every session under cacheDir, newest first.
func listEntries(cacheDir string, projectsOnly bool) ([]Entry, error) {
	var entries []Entry

	kinds := []string{project.DirName}
	if !projectsOnly {
		kinds = append(kinds, recording.DirName)
	}
	for _, kind := range kinds {
		dirs, err := filepath.Glob(filepath.Join(cacheDir, kind, "*"))
		if err != nil {
			return nil, err
		}
		for _, dir := range dirs {
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				continue
			}
			entries = append(entries, readEntry(dir))
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Created.After(entries[j].Created)
	})
	return entries, nil
}

func readEntry(dir string) Entry {
	o, err := openAny(dir)
	if err != nil {
		logger.WithComponent("list").Debug().Err(err).Str("path", dir).Msg("Unreadable cache entry")
		e := Entry{Kind: "unknown", Path: dir, Error: err.Error()}
		if info, statErr := os.Stat(dir); statErr == nil {
			e.Created = info.ModTime()
		}
		return e
	}
	s := o.summary()
	return Entry{
		Kind:     s.Kind,
		Path:     dir,
		Created:  s.CreationDate,
		Frames:   s.Frames,
		Duration: s.Duration,
	}
}

func runList(cmd *cobra.Command, args []string) error {
	cacheDir := listCacheDir
	if cacheDir == "" {
		configMgr, err := loadConfig()
		if err != nil {
			return err
		}
		cacheDir = configMgr.Get().Capture.CacheDir
	}

	entries, err := listEntries(cacheDir, listProjects)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", cacheDir, err)
	}

	switch listFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)
	case "table":
		return printEntriesTable(entries)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", listFormat)
	}
}

func printEntriesTable(entries []Entry) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "KIND\tCREATED\tFRAMES\tDURATION\tPATH")
	fmt.Fprintln(w, "----\t-------\t------\t--------\t----")

	for _, e := range entries {
		if e.Error != "" {
			fmt.Fprintf(w, "%s\t%s\t-\t-\t%s (%s)\n", e.Kind, e.Created.Format(time.DateTime), e.Path, e.Error)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			e.Kind, e.Created.Local().Format(time.DateTime), e.Frames, e.Duration.Round(time.Millisecond), e.Path)
	}

	return nil
}
