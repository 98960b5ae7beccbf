package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/pyforge/pyforge/internal/errors"
	"github.com/pyforge/pyforge/internal/observability"
	"github.com/pyforge/pyforge/internal/output"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the release index and download cache",
}

var cacheRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch the release index now",
	Long:  "Fetch the release index regardless of its age. A failed fetch is an error; the cached copy is left untouched.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := newEngine(ctx, engineOptions{})
		if err != nil {
			return err
		}
		defer e.Close() //nolint:errcheck

		if err := e.index.Refresh(ctx); err != nil {
			return errwrap.WrapExternalService(ctx, err, fmt.Sprintf("release index refresh from %s failed", e.cfg.Index.URL))
		}

		st, err := e.index.Status()
		if err != nil {
			return err
		}
		observability.CLILogger.Info("Release index refreshed",
			zap.Int("releases", st.Releases),
			zap.String("path", st.Path))
		return nil
	},
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show release index freshness",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine(cmd.Context(), engineOptions{})
		if err != nil {
			return err
		}
		defer e.Close() //nolint:errcheck

		st, err := e.index.Status()
		if err != nil {
			return err
		}
		return render(cmd, output.CacheStatusView(st))
	},
}

var cacheCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove downloaded archives and extraction directories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		withIndex, _ := cmd.Flags().GetBool("index")

		e, err := newEngine(cmd.Context(), engineOptions{})
		if err != nil {
			return err
		}
		defer e.Close() //nolint:errcheck

		targets := []string{e.layout.DownloadsDir, e.layout.ExtractedDir}
		if withIndex {
			targets = append(targets, e.layout.IndexFile)
		}

		var freed int64
		for _, target := range targets {
			size, err := removeTree(target)
			if err != nil {
				return err
			}
			freed += size
		}
		observability.CLILogger.Info("Cache cleaned", zap.String("freed", humanize.Bytes(uint64(freed))))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheRefreshCmd, cacheShowCmd, cacheCleanCmd)
	cacheCleanCmd.Flags().Bool("index", false, "Also remove the cached release index")
}

// removeTree deletes path and returns the bytes it held.
func removeTree(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				size += info.Size()
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("scan %s: %w", path, err)
	}
	if err := os.RemoveAll(path); err != nil {
		return 0, fmt.Errorf("remove %s: %w", path, err)
	}
	return size, nil
}
