// Package cli wires the seal/check/record/validate engines to a writer and
// an exit code, so that cmd/mhl stays a thin flag-parsing shim (the same
// split the teacher draws between cmd/helios-cli/main.go and
// cmd/helios-cli/internal/cli/cli.go).
package cli

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ascmhl/mhl/internal/mhlmetrics"
	"github.com/ascmhl/mhl/pkg/mhl/check"
	"github.com/ascmhl/mhl/pkg/mhl/hashformat"
	"github.com/ascmhl/mhl/pkg/mhl/model"
	"github.com/ascmhl/mhl/pkg/mhl/record"
	"github.com/ascmhl/mhl/pkg/mhl/seal"
	"github.com/ascmhl/mhl/pkg/mhl/xmlmanifest"
)

// Exit codes, spec.md §6 (new-files-found assigned 13 by this expansion,
// see SPEC_FULL.md §4.9).
const (
	ExitSuccess            = 0
	ExitVerificationFailed = 12
	ExitNewFilesFound      = 13
	ExitCompletenessFailed = 15
	ExitFatal              = 1
)

// Config holds the dependencies CLI handlers need, so tests can swap in a
// fake clock without touching the real filesystem clock.
type Config struct {
	Now func() time.Time
}

func (c Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func creatorInfo(now time.Time) model.CreatorInfo {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return model.CreatorInfo{
		Tool:         model.Tool{Name: "mhl", Version: version},
		HostName:     host,
		CreationDate: now,
		ProcessKind:  model.ProcessInPlace,
	}
}

// version is overridden at build time via -ldflags, mirroring the teacher's
// cmd/helios-cli/main.go version variable.
var version = "dev"

// SealOptions are the seal subcommand's flags.
type SealOptions struct {
	Root            string
	Format          hashformat.Format
	DirectoryHashes bool
	HistoryDirName  string
	Verbose         bool
}

// HandleSeal runs the Seal Engine and reports the outcome to w/logger,
// returning the process exit code.
func HandleSeal(w io.Writer, logger *slog.Logger, cfg Config, opts SealOptions) int {
	result, err := seal.Run(opts.Root, seal.Options{
		Format:          opts.Format,
		DirectoryHashes: opts.DirectoryHashes,
		HistoryDirName:  opts.HistoryDirName,
		Creator:         creatorInfo(cfg.now()),
		Now:             cfg.now(),
	})
	if result != nil {
		logMetrics(logger, result.Metrics)
		emit(w, map[string]any{
			"generation": result.Generation.Number,
			"mismatched": result.Mismatches,
			"missing":    result.Missing,
		})
	}

	var completeness *seal.CompletenessCheckFailed
	var verification *seal.VerificationFailed
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &completeness):
		logger.Warn("completeness check failed", "missing", completeness.Paths)
		return ExitCompletenessFailed
	case errors.As(err, &verification):
		logger.Warn("verification failed", "mismatched", verification.Paths)
		return ExitVerificationFailed
	default:
		logger.Error("seal failed", "error", err)
		return ExitFatal
	}
}

// CheckOptions are the check subcommand's flags.
type CheckOptions struct {
	Root           string
	HistoryDirName string
}

// HandleCheck runs the Check Engine and reports the outcome to w/logger,
// returning the process exit code. Mismatched, new and missing paths may
// all be reported in the same run (spec.md §4.6).
func HandleCheck(w io.Writer, logger *slog.Logger, opts CheckOptions) int {
	result, err := check.Run(opts.Root, check.Options{HistoryDirName: opts.HistoryDirName})

	var noHistory *check.NoHistory
	if errors.As(err, &noHistory) {
		logger.Error("no history found", "root", opts.Root)
		return ExitFatal
	}

	if result != nil {
		logMetrics(logger, result.Metrics)
		emit(w, map[string]any{
			"mismatched": result.Mismatched,
			"new":        result.New,
			"missing":    result.Missing,
		})
	}

	if err == nil {
		return ExitSuccess
	}

	var failure *check.Failure
	if !errors.As(err, &failure) {
		logger.Error("check failed", "error", err)
		return ExitFatal
	}

	// A single run can fail on more than one axis; report the most severe
	// exit code, in the same priority order as the Seal Engine.
	switch {
	case len(failure.Missing) > 0:
		logger.Warn("completeness check failed", "missing", failure.Missing)
		return ExitCompletenessFailed
	case len(failure.Mismatched) > 0:
		logger.Warn("verification failed", "mismatched", failure.Mismatched)
		return ExitVerificationFailed
	case len(failure.New) > 0:
		logger.Warn("new files found", "new", failure.New)
		return ExitNewFilesFound
	default:
		return ExitSuccess
	}
}

// RecordOptions are the record subcommand's flags.
type RecordOptions struct {
	Root           string
	Paths          []string
	Format         hashformat.Format
	HistoryDirName string
}

// HandleRecord runs the Record Engine and reports the outcome to w/logger,
// returning the process exit code.
func HandleRecord(w io.Writer, logger *slog.Logger, cfg Config, opts RecordOptions) int {
	result, err := record.Run(opts.Root, opts.Paths, record.Options{
		Format:         opts.Format,
		HistoryDirName: opts.HistoryDirName,
		Creator:        creatorInfo(cfg.now()),
		Now:            cfg.now(),
	})
	if errors.Is(err, record.ErrNoPaths) {
		logger.Error(err.Error())
		return ExitFatal
	}
	if result != nil {
		logMetrics(logger, result.Metrics)
		emit(w, map[string]any{
			"generation": result.Generation.Number,
			"mismatched": result.Mismatches,
		})
	}

	var verification *record.VerificationFailed
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &verification):
		logger.Warn("verification failed", "mismatched", verification.Paths)
		return ExitVerificationFailed
	default:
		logger.Error("record failed", "error", err)
		return ExitFatal
	}
}

// HandleValidate validates one manifest file's structure. spec.md §6's
// contract for this subcommand is exit 0 or 12 (the original tool raises
// VerificationFailedException, not a fatal error, on a schema failure).
func HandleValidate(w io.Writer, logger *slog.Logger, path string) int {
	if err := xmlmanifest.ValidateSchema(path); err != nil {
		logger.Warn("validation failed", "path", path, "error", err)
		return ExitVerificationFailed
	}
	emit(w, map[string]any{"valid": true, "path": path})
	return ExitSuccess
}

func logMetrics(logger *slog.Logger, snap mhlmetrics.Snapshot) {
	logger.Info("run metrics",
		"new", snap.New, "verified", snap.Verified,
		"mismatched", snap.Mismatched, "missing", snap.Missing,
		"hash_latency_us_p50", snap.HashLatencyUSP50,
		"hash_latency_us_p95", snap.HashLatencyUSP95,
		"hash_latency_us_p99", snap.HashLatencyUSP99)
}

func emit(w io.Writer, v map[string]any) {
	_ = json.NewEncoder(w).Encode(v)
}
