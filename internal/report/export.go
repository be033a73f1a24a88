package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	gberr "github.com/arkilian/gridbench/internal/errors"
	"github.com/arkilian/gridbench/internal/logging"
	"github.com/arkilian/gridbench/internal/storage"
)

// exportPrefix is the object prefix reports are uploaded under.
const exportPrefix = "reports"

// FileName returns the artifact name for a report started at t. The run id
// prefix keeps runs started in the same second apart.
func FileName(t time.Time, runID string, compress bool) string {
	if len(runID) > 8 {
		runID = runID[:8]
	}
	return "run_" + t.UTC().Format("20060102T150405.000Z") + "_" + runID + Extension(compress)
}

// Export encodes r into dir and, when store is non-nil, uploads the file.
// Existing artifacts are never overwritten. It returns the local path of the
// written artifact.
func Export(ctx context.Context, store storage.ObjectStorage, r *Report, dir string, compress bool) (string, error) {
	data, err := Encode(r, compress)
	if err != nil {
		return "", gberr.ExportFailed("failed to encode report", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", gberr.ExportFailed("failed to create report directory", err)
	}

	name := FileName(r.StartedAt, r.RunID, compress)
	localPath := filepath.Join(dir, name)
	if _, err := os.Stat(localPath); err == nil {
		return "", gberr.ExportFailed("report "+name+" already exists", nil)
	}

	// Write to a temp file first, then rename so readers never see a partial report
	tmp := localPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", gberr.ExportFailed("failed to write report", err)
	}
	if err := os.Rename(tmp, localPath); err != nil {
		os.Remove(tmp)
		return "", gberr.ExportFailed("failed to finalize report", err)
	}

	logging.Info().
		Str("run_id", r.RunID).
		Str("path", localPath).
		Str("size", humanize.Bytes(uint64(len(data)))).
		Msg("report written")

	if store == nil {
		return localPath, nil
	}

	objectPath := path.Join(exportPrefix, name)
	exists, err := store.Exists(ctx, objectPath)
	if err != nil {
		return localPath, gberr.ExportFailed("failed to check exported reports", err)
	}
	if exists {
		return localPath, gberr.ExportFailed("object "+objectPath+" already exists", nil)
	}
	if err := store.Upload(ctx, localPath, objectPath); err != nil {
		return localPath, gberr.ExportFailed("failed to upload report", err)
	}
	logging.Info().Str("run_id", r.RunID).Str("object", objectPath).Msg("report exported")
	return localPath, nil
}

// Load reads a report artifact written by Export.
func Load(localPath string) (*Report, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("report: failed to read %s: %w", localPath, err)
	}
	return Decode(data)
}

// List returns the names of the reports exported to store, newest first.
func List(ctx context.Context, store storage.ObjectStorage) ([]string, error) {
	objects, err := store.ListObjects(ctx, exportPrefix)
	if err != nil {
		return nil, fmt.Errorf("report: failed to list reports: %w", err)
	}
	var names []string
	for _, obj := range objects {
		name := path.Base(obj)
		if strings.HasPrefix(name, "run_") && (strings.HasSuffix(name, Extension(false)) || strings.HasSuffix(name, Extension(true))) {
			names = append(names, name)
		}
	}
	// Names start with the UTC start time, so lexical order is chronological
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// Fetch downloads the exported report name into dir and decodes it.
func Fetch(ctx context.Context, store storage.ObjectStorage, name, dir string) (*Report, error) {
	localPath := filepath.Join(dir, path.Base(name))
	if err := store.Download(ctx, path.Join(exportPrefix, path.Base(name)), localPath); err != nil {
		return nil, fmt.Errorf("report: failed to fetch %s: %w", name, err)
	}
	return Load(localPath)
}

// Prune deletes all but the newest keep exported reports and returns the
// names removed. keep <= 0 keeps everything.
func Prune(ctx context.Context, store storage.ObjectStorage, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	names, err := List(ctx, store)
	if err != nil {
		return nil, err
	}
	if len(names) <= keep {
		return nil, nil
	}

	stale := names[keep:]
	for _, name := range stale {
		if err := store.Delete(ctx, path.Join(exportPrefix, name)); err != nil {
			return nil, fmt.Errorf("report: failed to prune %s: %w", name, err)
		}
	}
	logging.Info().Int("kept", keep).Int("pruned", len(stale)).Msg("old reports pruned")
	return stale, nil
}

// WriteTable prints the per-operation comparison as an aligned text table.
func WriteTable(w io.Writer, r *Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OPERATION\tHEX MEAN\tSQUARE MEAN\tRATIO\tWINNER\tFAILED")
	for i := range r.Operations {
		op := &r.Operations[i]
		ratio := "-"
		if op.Ratio != nil {
			ratio = humanize.FtoaWithDigits(*op.Ratio, 3)
		}
		winner := op.Winner
		if winner == "" {
			winner = "-"
		}
		failed := 0
		for _, a := range op.Adapters {
			failed += a.Failed
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			op.Operation,
			formatMean(op.Adapter(HexAdapter)),
			formatMean(op.Adapter(SquareAdapter)),
			ratio, winner, failed)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	var wins []string
	for _, name := range []string{HexAdapter, SquareAdapter, WinnerTie} {
		if n := r.Summary.Wins[name]; n > 0 {
			wins = append(wins, fmt.Sprintf("%s=%d", name, n))
		}
	}
	status := "complete"
	if !r.Summary.Complete {
		status = "incomplete"
	}
	_, err := fmt.Fprintf(w, "\n%s samples (%d failed), wins: %s, run %s\n",
		humanize.Comma(int64(r.Summary.Samples)), r.Summary.FailedSamples, strings.Join(wins, " "), status)
	return err
}

func formatMean(a *AdapterStats) string {
	if a == nil || a.N == 0 {
		return "-"
	}
	return time.Duration(a.MeanNs).Round(time.Microsecond).String()
}
