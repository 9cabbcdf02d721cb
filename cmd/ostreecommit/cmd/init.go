package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oneconcern/ostree-go"
	"github.com/oneconcern/ostree-go/internal/objpath"
)

var initParams struct {
	mode string
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new repository at --repo",
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := objpath.ModeBare
		if initParams.mode == "archive-z2" {
			mode = objpath.ModeArchiveZ2
		} else if initParams.mode != "" && initParams.mode != "bare" {
			return fmt.Errorf("unknown mode %q, want bare or archive-z2", initParams.mode)
		}
		repo, err := ostree.Create(params.repoPath, mode, newLogger())
		if err != nil {
			return err
		}
		defer func() { _ = repo.Close() }()
		fmt.Println(success(fmt.Sprintf("initialized %s repository at %s", initParams.mode, params.repoPath)))
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initParams.mode, "mode", "bare", "storage mode: bare or archive-z2")
	rootCmd.AddCommand(initCmd)
}
