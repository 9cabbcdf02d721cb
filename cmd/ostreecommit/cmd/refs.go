package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oneconcern/ostree-go"
)

var refsCmd = &cobra.Command{
	Use:   "refs",
	Short: "List refs and the commits they point at",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := ostree.Open(params.repoPath, newLogger())
		if err != nil {
			return fmt.Errorf("opening repository: %w", err)
		}
		defer func() { _ = repo.Close() }()

		updates, err := repo.ListRefs()
		if err != nil {
			return fmt.Errorf("listing refs: %w", err)
		}
		for _, u := range updates {
			fmt.Printf("%s %s\n", faint(u.Ref.String()), u.Checksum.String())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refsCmd)
}
