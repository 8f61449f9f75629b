package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the toolforge command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "toolforge",
		Short: "Declarative tool factory",
		Long: "toolforge validates tool definitions against the methods they invoke and generates\n" +
			"Go wrappers and tests from them.",
		// SilenceUsage prevents printing usage on every error
		SilenceUsage: true,
	}
	AddPersistentFlags(root)

	root.Version = Version
	root.SetVersionTemplate(fmt.Sprintf("toolforge version %s\n", Version))

	root.AddCommand(NewValidateCmd())
	root.AddCommand(NewGenerateCmd())
	root.AddCommand(NewDriftCmd())
	root.AddCommand(NewCoverageCmd())
	root.AddCommand(NewToolsCmd())
	root.AddCommand(NewMethodsCmd())
	root.AddCommand(NewHistoryCmd())
	root.AddCommand(NewWatchCmd())
	return root
}
