package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oneconcern/ostree-go"
	"github.com/oneconcern/ostree-go/internal/objpath"
)

var catObjectParams struct {
	objType string
	verify  bool
}

var catObjectCmd = &cobra.Command{
	Use:   "cat-object <checksum>",
	Short: "Dump a stored object's raw bytes, optionally verifying its checksum",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cs, err := objpath.FromHex(args[0])
		if err != nil {
			return fmt.Errorf("parsing checksum: %w", err)
		}
		objType, err := parseObjType(catObjectParams.objType)
		if err != nil {
			return err
		}

		repo, err := ostree.Open(params.repoPath, newLogger())
		if err != nil {
			return fmt.Errorf("opening repository: %w", err)
		}
		defer func() { _ = repo.Close() }()

		if catObjectParams.verify {
			if err := repo.VerifyObject(cs, objType); err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}
			fmt.Println(success("checksum verified"))
			return nil
		}

		rel := repo.ObjectPath(cs, objType)
		data, err := os.ReadFile(repo.ObjectsDir() + "/" + rel)
		if err != nil {
			return fmt.Errorf("reading object: %w", err)
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func parseObjType(s string) (objpath.Type, error) {
	switch s {
	case "commit":
		return objpath.Commit, nil
	case "dirtree":
		return objpath.DirTree, nil
	case "dirmeta":
		return objpath.DirMeta, nil
	case "file":
		return objpath.File, nil
	default:
		return 0, fmt.Errorf("unknown object type %q", s)
	}
}

func init() {
	catObjectCmd.Flags().StringVar(&catObjectParams.objType, "type", "commit", "object type: commit, dirtree, dirmeta, file")
	catObjectCmd.Flags().BoolVar(&catObjectParams.verify, "verify", false, "re-hash the stored object and check it against the given checksum")
	rootCmd.AddCommand(catObjectCmd)
}
