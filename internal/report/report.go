// Package report turns a checker.Violation into process-level output: a
// structured log line followed by the nonzero exit §7 requires. It is the
// one point in this repository where the teacher's fmt.Errorf-only error
// surface is upgraded to a real structured logger.
package report

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/deploymenttheory/go-apfs/internal/checker"
)

// NewLogger builds the logrus.Logger the CLI hands to every command,
// configured for either human-readable text or machine-readable JSON.
func NewLogger(verbose bool, jsonOutput bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if jsonOutput {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	return logger
}

// Fatal logs v's category, tree flavor, oid and xid at error level, then
// terminates the process with a nonzero exit code, matching the "no local
// recovery" policy a fatal Violation carries throughout the checker.
func Fatal(logger *logrus.Logger, v *checker.Violation) {
	logger.WithFields(logrus.Fields{
		"category":  string(v.Category),
		"tree_kind": v.TreeKind.String(),
		"oid":       v.OID,
		"xid":       v.XID,
	}).Error(v.Message)
	os.Exit(1)
}

// Stage logs an informational milestone (e.g. "volume 2: walking catalog
// tree"), matching the teacher's informal fmt.Printf progress notices in
// cmd/config.go's placeholder commands but through the structured logger.
func Stage(logger *logrus.Logger, format string, args ...any) {
	logger.Infof(format, args...)
}
