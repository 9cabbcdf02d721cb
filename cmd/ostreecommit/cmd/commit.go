package cmd

import (
	"context"
	"fmt"
	"time"

	units "github.com/docker/go-units"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/oneconcern/ostree-go"
	"github.com/oneconcern/ostree-go/internal/mtree"
)

var commitParams struct {
	ref     string
	branch  string
	subject string
	body    string
}

var commitCmd = &cobra.Command{
	Use:   "commit <path>",
	Short: "Ingest a directory and record it as a commit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dirPath := args[0]
		repo, err := ostree.Open(params.repoPath, newLogger())
		if err != nil {
			return fmt.Errorf("opening repository: %w", err)
		}
		defer func() { _ = repo.Close() }()

		ctx := context.Background()
		resume, err := repo.PrepareTransaction()
		if err != nil {
			return fmt.Errorf("preparing transaction: %w", err)
		}
		if resume {
			fmt.Println(faint("resuming after an unclean exit of a previous transaction"))
		}

		tree := mtree.New()
		if err := repo.WriteDirectoryToMtree(ctx, afero.NewOsFs(), dirPath, tree, nil); err != nil {
			_ = repo.AbortTransaction()
			return fmt.Errorf("ingesting %s: %w", dirPath, err)
		}
		rootContents, rootMeta, err := repo.WriteMtree(ctx, tree)
		if err != nil {
			_ = repo.AbortTransaction()
			return fmt.Errorf("serializing tree: %w", err)
		}

		refName := commitParams.ref
		if refName == "" {
			refName = commitParams.branch
		}
		if refName == "" {
			_ = repo.AbortTransaction()
			return fmt.Errorf("one of --ref or --branch must be set")
		}

		var parent *ostree.Checksum
		if commitParams.branch != "" {
			if cs, ok, err := repo.ResolveRef(commitParams.branch); err == nil && ok {
				parent = &cs
			}
		}

		checksum, err := repo.WriteCommit(ctx, refName, parent, commitParams.subject, commitParams.body, rootContents, rootMeta, nil, time.Now)
		if err != nil {
			_ = repo.AbortTransaction()
			return fmt.Errorf("writing commit: %w", err)
		}

		if err := repo.TransactionSetRef(refName, &checksum); err != nil {
			_ = repo.AbortTransaction()
			return fmt.Errorf("setting ref %s: %w", refName, err)
		}

		counters, err := repo.CommitTransaction()
		if err != nil {
			return fmt.Errorf("committing transaction: %w", err)
		}

		fmt.Println(success(checksum.String()))
		fmt.Printf("  %s content objects written (%s new)\n",
			faint(fmt.Sprintf("%d", counters.ContentObjectsTotal)),
			faint(fmt.Sprintf("%d", counters.ContentObjectsWritten)))
		fmt.Printf("  %s metadata objects written (%s new)\n",
			faint(fmt.Sprintf("%d", counters.MetadataObjectsTotal)),
			faint(fmt.Sprintf("%d", counters.MetadataObjectsWritten)))
		fmt.Printf("  %s written\n", faint(units.BytesSize(float64(counters.ContentBytesWritten))))
		return nil
	},
}

func init() {
	commitCmd.Flags().StringVar(&commitParams.ref, "ref", "", "ref to update to the new commit (defaults to --branch)")
	commitCmd.Flags().StringVar(&commitParams.branch, "branch", "", "branch ref to use as the commit's parent")
	commitCmd.Flags().StringVar(&commitParams.subject, "subject", "", "commit subject line")
	commitCmd.Flags().StringVar(&commitParams.body, "body", "", "commit body")
	rootCmd.AddCommand(commitCmd)
}
