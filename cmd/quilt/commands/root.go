package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for Quilt
var RootCmd = &cobra.Command{
	Use:              "quilt",
	Short:            "quilt parallel contract runtime",
	TraverseChildren: true,
}
