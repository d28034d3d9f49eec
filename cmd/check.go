package cmd

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-apfs/internal/checker"
	"github.com/deploymenttheory/go-apfs/internal/config"
	"github.com/deploymenttheory/go-apfs/internal/driver"
	"github.com/deploymenttheory/go-apfs/internal/report"
	"github.com/deploymenttheory/go-apfs/internal/types"
)

var checkCmd = &cobra.Command{
	Use:   "check <device>",
	Short: "Walk every B-tree in a container and report the first fatal inconsistency",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	verbose := GetVerbose() || cfg.Verbose
	caseInsensitive := GetCaseInsensitive() || cfg.CaseInsensitive
	outputFormat := GetOutputFormat()
	if !cmd.Flags().Changed("output") {
		outputFormat = cfg.OutputFormat
	}
	jsonOutput := outputFormat == "json"

	logger := report.NewLogger(verbose, jsonOutput)

	ctx := context.Background()
	devicePath := args[0]

	c, err := driver.OpenDMGContainer(ctx, devicePath)
	if err != nil {
		return err
	}
	defer c.Close()

	report.Stage(logger, "container %s: opened, xid=%d, block size=%d", c.UUID(), c.CurrentXID(), c.BlockSize())

	if err := walkTree(ctx, logger, c, checker.KindOmap, nil, c.OmapOid(), caseInsensitive); err != nil {
		return reportAndExit(logger, err)
	}

	for _, vol := range c.Volumes {
		report.Stage(logger, "volume %q (fs index %d, uuid %s): checking", vol.Name, vol.FsIndex, vol.UUID)

		if err := walkTree(ctx, logger, c, checker.KindOmap, nil, vol.OmapOid, caseInsensitive); err != nil {
			return reportAndExit(logger, err)
		}
		if err := walkTree(ctx, logger, c, checker.KindCatalog, vol.OmapRoot(), vol.RootTreeOid, caseInsensitive); err != nil {
			return reportAndExit(logger, err)
		}
		if err := walkTree(ctx, logger, c, checker.KindExtentref, nil, vol.ExtentrefOid, caseInsensitive); err != nil {
			return reportAndExit(logger, err)
		}
		if vol.SnapMetaOid != types.OidInvalid {
			if err := walkTree(ctx, logger, c, checker.KindSnapMeta, nil, vol.SnapMetaOid, caseInsensitive); err != nil {
				return reportAndExit(logger, err)
			}
		}
	}

	report.Stage(logger, "container %s: all trees pass", c.UUID())
	return nil
}

// walkTree builds a Tree for one flavor of a container or volume and runs
// both halves of the check: the full structural/schema walk, then the
// footer reconciliation against what the walk counted.
func walkTree(ctx context.Context, logger *logrus.Logger, c *driver.Container, kind checker.TreeKind, omapRoot *checker.Node, rootOid types.OidT, caseFold bool) error {
	tree := &checker.Tree{
		Kind:      kind,
		XID:       c.CurrentXID(),
		CaseFold:  caseFold,
		BlockSize: c.BlockSize(),
		OmapRoot:  omapRoot,
		Read:      c.ReadObject,
	}

	report.Stage(logger, "walking %s tree (root oid %d)", kind, rootOid)
	root, err := tree.Walk(ctx, rootOid)
	if err != nil {
		return err
	}
	return tree.CheckFooter(root)
}

func reportAndExit(logger *logrus.Logger, err error) error {
	var v *checker.Violation
	if errors.As(err, &v) {
		report.Fatal(logger, v)
		return nil // unreachable: report.Fatal calls os.Exit
	}
	return err
}
