package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/petal-labs/toolforge/consolidate"
	"github.com/petal-labs/toolforge/constraint"
	"github.com/petal-labs/toolforge/inventory"
	"github.com/petal-labs/toolforge/mapping"
)

// NewToolsCmd creates the "tools" command group.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List and inspect tool definitions",
	}
	cmd.AddCommand(newToolsListCmd())
	cmd.AddCommand(newToolsInspectCmd())
	return cmd
}

// NewMethodsCmd creates the "methods" command group.
func NewMethodsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "methods",
		Short: "List and inspect method definitions",
	}
	cmd.AddCommand(newMethodsListCmd())
	cmd.AddCommand(newMethodsInspectCmd())
	return cmd
}

func newToolsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tool definitions",
		Args:  cobra.NoArgs,
		RunE:  runToolsList,
	}
	cmd.Flags().String("method", "", "Only tools bound to this method")
	cmd.Flags().String("tag", "", "Only tools carrying this tag")
	return cmd
}

func runToolsList(cmd *cobra.Command, _ []string) error {
	method, _ := cmd.Flags().GetString("method")
	tag, _ := cmd.Flags().GetString("tag")

	cat, s, err := loadCatalog(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	tools := cat.Tools.All()
	if tag != "" {
		tools = cat.Tools.ByTag(tag)
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tMETHOD\tPARAMS\tSTATUS\tSOURCE")
	for _, t := range tools {
		if method != "" && t.Method != method {
			continue
		}
		fmt.Fprintf(writer, "%s\t%s\t%d\t%s\t%s\n",
			t.Name,
			orDash(t.Method),
			len(t.Params),
			toolStatus(cat, t),
			orDash(t.Source),
		)
	}
	return writer.Flush()
}

func newToolsInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <name>",
		Short: "Show a tool with its normalized constraints and findings",
		Args:  cobra.ExactArgs(1),
		RunE:  runToolsInspect,
	}
	cmd.Flags().String("format", "yaml", "Output format: yaml | json")
	return cmd
}

func runToolsInspect(cmd *cobra.Command, args []string) error {
	cat, s, err := loadCatalog(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	t, err := cat.Tools.Get(args[0])
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}
	params, err := constraint.ExtractTool(t)
	if err != nil {
		return exitError(exitValidation, "tool %q: %v", t.Name, err)
	}

	vopts, err := s.cfg.ValidationOptions()
	if err != nil {
		return exitError(exitInputParse, "%v", err)
	}
	vopts.IncludeUnchecked = true
	vopts.Logger = s.logger
	rep, err := mapping.NewValidator(vopts).Validate(cmd.Context(), cat)
	if err != nil {
		return exitError(exitRuntime, "validating: %v", err)
	}

	view := map[string]any{
		"kind":       "tool",
		"status":     toolStatus(cat, t),
		"source":     t.Source,
		"definition": t,
		"params":     params,
		"findings":   rep.ForTool(t.Name),
	}
	return writeInspect(cmd, view)
}

func newMethodsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List method definitions with their tool coverage",
		Args:  cobra.NoArgs,
		RunE:  runMethodsList,
	}
}

func runMethodsList(cmd *cobra.Command, _ []string) error {
	cat, s, err := loadCatalog(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tDOMAIN\tPARAMS\tREQUIRED\tTOOLS\tSOURCE")
	for _, m := range cat.Methods.All() {
		tools := toolNames(cat.ToolsForMethod(m.Name))
		toolCol := strings.Join(tools, ",")
		if m.Opaque {
			toolCol += " (opaque)"
		}
		fmt.Fprintf(writer, "%s\t%s\t%d\t%d\t%s\t%s\n",
			m.Name,
			orDash(m.Domain),
			len(m.Params),
			len(m.RequiredParams()),
			orDash(strings.TrimSpace(toolCol)),
			orDash(m.Source),
		)
	}
	return writer.Flush()
}

func newMethodsInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <name>",
		Short: "Show a method with its normalized constraints and bound tools",
		Args:  cobra.ExactArgs(1),
		RunE:  runMethodsInspect,
	}
	cmd.Flags().String("format", "yaml", "Output format: yaml | json")
	return cmd
}

func runMethodsInspect(cmd *cobra.Command, args []string) error {
	cat, s, err := loadCatalog(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	m, err := cat.Methods.Get(args[0])
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}
	params, err := constraint.ExtractMethod(m)
	if err != nil {
		return exitError(exitValidation, "method %q: %v", m.Name, err)
	}
	view := map[string]any{
		"kind":       "method",
		"source":     m.Source,
		"definition": m,
		"params":     params,
		"tools":      toolNames(cat.ToolsForMethod(m.Name)),
	}
	return writeInspect(cmd, view)
}

// loadCatalog runs only the load stage. The caller closes the session.
func loadCatalog(cmd *cobra.Command) (*inventory.Catalog, *session, error) {
	s, err := openSession(cmd)
	if err != nil {
		return nil, nil, err
	}
	orch, err := s.orchestrator(false)
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	cat, err := orch.Load(cmd.Context(), s.cfg.Sources)
	if err != nil {
		s.Close()
		return nil, nil, exitError(consolidate.ExitCodeFor(err), "loading inventories: %v", err)
	}
	return cat, s, nil
}

// writeInspect prints view through its JSON form so YAML output uses the
// same field names.
func writeInspect(cmd *cobra.Command, view map[string]any) error {
	format, _ := cmd.Flags().GetString("format")
	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding definition: %w", err)
	}
	switch format {
	case "json":
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	case "yaml", "":
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return fmt.Errorf("encoding definition: %w", err)
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return fmt.Errorf("encoding definition: %w", err)
		}
		return enc.Close()
	default:
		return exitError(exitInputParse, "unknown format %q (want yaml or json)", format)
	}
}

func toolStatus(cat *inventory.Catalog, t inventory.ToolDefinition) string {
	switch {
	case !t.IsEnabled():
		return "disabled"
	case !t.Bound():
		return "inline"
	case !cat.Methods.Has(t.Method):
		return "dangling"
	default:
		return "bound"
	}
}

func toolNames(tools []inventory.ToolDefinition) []string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	return names
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
