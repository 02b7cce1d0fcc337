package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/Botflow/internal/domain"
	"github.com/shaiso/Botflow/internal/engine"
	"github.com/shaiso/Botflow/internal/templates"
)

// ComposeResult — локально собранный шаблон.
type ComposeResult struct {
	Specialty string          `json:"specialty,omitempty"`
	Goal      string          `json:"goal"`
	Fragments []string        `json:"fragments"`
	Template  domain.Template `json:"template"`
	Issues    []string        `json:"issues"`
}

// NewTemplateCmd создаёт группу команд для работы с шаблонами.
// Команды работают со встроенным каталогом и не обращаются к API.
func NewTemplateCmd(outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Inspect bot templates locally",
	}

	cmd.AddCommand(newTemplateComposeCmd(outputFn))

	return cmd
}

func newTemplateComposeCmd(outputFn func() *Output) *cobra.Command {
	var (
		specialty string
		goal      string
		language  string
		sets      []string
	)

	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Compose the embedded fragments and validate the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			variables, err := parseAssignments(sets)
			if err != nil {
				return err
			}

			result, err := composeTemplate(specialty, goal, variables)
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(result)
				return nil
			}

			out.Line("Fragments: %v", result.Fragments)
			out.Table([]string{"FLOW", "#", "STEP", "TYPE", "NEXT", "TEXT"}, stepRows(&result.Template, language))

			if len(result.Issues) == 0 {
				out.Success("Template is valid")
				return nil
			}
			out.Line("")
			for _, issue := range result.Issues {
				out.Line("! %s", issue)
			}
			return fmt.Errorf("%d validation issue(s)", len(result.Issues))
		},
	}

	cmd.Flags().StringVar(&specialty, "specialty", "", "Business specialty")
	cmd.Flags().StringVar(&goal, "goal", "", "Bot goal")
	cmd.Flags().StringVar(&language, "language", domain.LanguageES, "Language for step texts")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Template variable key=value (repeatable)")

	return cmd
}

func composeTemplate(specialty, goal string, variables map[string]any) (*ComposeResult, error) {
	catalog, err := templates.Default()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	tmpl, sel := catalog.Compose(specialty, goal, variables)

	issues := make([]string, 0)
	for _, e := range engine.Validate(&tmpl) {
		issues = append(issues, e.Error())
	}

	return &ComposeResult{
		Specialty: sel.Specialty,
		Goal:      sel.Goal,
		Fragments: sel.Names,
		Template:  tmpl,
		Issues:    issues,
	}, nil
}

func stepRows(t *domain.Template, language string) [][]string {
	ctx := engine.Context(t.Variables)
	var rows [][]string
	for _, flow := range t.Flows {
		for i, step := range flow.Steps {
			rows = append(rows, []string{
				flow.ID,
				strconv.Itoa(i),
				step.ID,
				string(step.Type),
				step.Next,
				engine.RenderText(step.Text, language, ctx, ""),
			})
		}
	}
	return rows
}
