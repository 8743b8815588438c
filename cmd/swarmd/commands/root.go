package commands

import (
	"github.com/spf13/cobra"

	"github.com/cyph3rasi/synapsis-swarm/src/config"
)

var (
	_config = config.NewDefaultConfig()
)

//RootCmd is the root command for swarmd
var RootCmd = &cobra.Command{
	Use:              "swarmd",
	Short:            "swarm membership daemon",
	TraverseChildren: true,
}
