package main

import "github.com/oneconcern/ostree-go/cmd/ostreecommit/cmd"

func main() {
	cmd.Execute()
}
