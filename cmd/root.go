package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "greencoach"}

	root.AddCommand(serveCMD(), trainCMD(), migrateCMD())
	_ = root.Execute()
}
