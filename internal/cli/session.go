package cli

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewSessionCmd создаёт группу команд для работы с сессиями.
func NewSessionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Drive chat sessions",
	}

	cmd.AddCommand(
		newSessionCreateCmd(clientFn, outputFn),
		newSessionShowCmd(clientFn, outputFn),
		newSessionSayCmd(clientFn, outputFn),
		newSessionNextCmd(clientFn, outputFn),
		newSessionHandoffCmd(clientFn, outputFn),
		newSessionLanguageCmd(clientFn, outputFn),
	)

	return cmd
}

func newSessionCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		specialty string
		goal      string
		language  string
		sets      []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session for a specialty and goal",
		Example: `  botflow session create --specialty dental --goal insurance_check \
    --set clinicName="Clínica Sol" --set receptionEmail=front@sol.example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			demographics, err := parseAssignments(sets)
			if err != nil {
				return err
			}

			created, err := client.CreateSession(CreateSessionRequest{
				Specialty:    specialty,
				Goal:         goal,
				Language:     language,
				Demographics: demographics,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Session created: %s", created.SessionID))
			out.Print(
				[]string{"ID", "GOAL", "LANGUAGE", "EXPIRES"},
				[][]string{{created.SessionID, created.Goal, created.Language, created.ExpiresAt}},
				created,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&specialty, "specialty", "", "Business specialty (dental, legal, ...)")
	cmd.Flags().StringVar(&goal, "goal", "", "Bot goal (appointments, faqs, ...)")
	cmd.Flags().StringVar(&language, "language", "", "Session language: es or en")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Demographic value key=value (repeatable)")

	return cmd
}

func newSessionShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show session state, lead and transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			session, err := client.GetSession(args[0])
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(session)
				return nil
			}

			out.Table(
				[]string{"ID", "STATUS", "LANGUAGE", "GOAL", "CURSOR", "REVISION"},
				[][]string{{
					session.ID,
					session.Status,
					session.Language,
					session.Goal,
					fmt.Sprintf("%s/%d", session.CurrentFlowID, session.CurrentStepIndex),
					strconv.FormatInt(session.Revision, 10),
				}},
			)

			if len(session.Lead) > 0 {
				out.Line("")
				out.Table([]string{"FIELD", "VALUE"}, leadRows(session.Lead))
			}

			if len(session.Events) > 0 {
				out.Line("")
				rows := make([][]string, len(session.Events))
				for i, e := range session.Events {
					rows[i] = []string{e.TS, e.Type, e.StepID, e.Payload.Text}
				}
				out.Table([]string{"TS", "TYPE", "STEP", "TEXT"}, rows)
			}

			if session.SummaryText != "" {
				out.Line("\nSummary: %s", session.SummaryText)
			}
			printStep(out, session.CurrentStep)
			return nil
		},
	}
}

func newSessionSayCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "say ID TEXT...",
		Short: "Send a user message and print the next step",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := RecordEventRequest{Type: "user_message"}
			req.Payload.Text = strings.Join(args[1:], " ")
			return sendEvent(clientFn(), outputFn(), args[0], req)
		},
	}
}

func newSessionNextCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "next ID",
		Short: "Acknowledge the current bot step (bot_message) and move on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()

			session, err := client.GetSession(args[0])
			if err != nil {
				return err
			}
			if session.CurrentStep == nil {
				return errors.New("session has no current step")
			}

			req := RecordEventRequest{
				Type:   "bot_message",
				FlowID: session.CurrentStep.FlowID,
				StepID: session.CurrentStep.ID,
			}
			req.Payload.Text = session.CurrentStep.Text
			return sendEvent(client, outputFn(), args[0], req)
		},
	}
}

func newSessionHandoffCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "handoff ID",
		Short: "Generate the operator summary and complete the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			result, err := client.Handoff(args[0])
			if err != nil {
				return err
			}

			if result.AlreadyDone {
				out.Success("Handoff was already completed")
			} else {
				out.Success("Handoff completed")
			}
			out.Print(
				[]string{"SESSION", "SUMMARY"},
				[][]string{{result.SessionID, result.Summary}},
				result,
			)
			return nil
		},
	}
}

func newSessionLanguageCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "language ID LANG",
		Short: "Switch the session language (es, en)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			session, err := client.SetLanguage(args[0], args[1])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Language set to %s", session.Language))
			if out.jsonMode {
				out.JSON(session)
				return nil
			}
			printStep(out, session.CurrentStep)
			return nil
		},
	}
}

// sendEvent отправляет событие и печатает шаг, на котором оказалась сессия.
func sendEvent(client *Client, out *Output, id string, req RecordEventRequest) error {
	result, err := client.RecordEvent(id, req)
	if err != nil {
		return err
	}

	if out.jsonMode {
		out.JSON(result)
		return nil
	}

	switch {
	case result.Duplicate:
		out.Success("Step already passed, event ignored")
	case !result.Applied:
		out.Success("Event recorded, session did not advance")
	}

	session, err := client.GetSession(id)
	if err != nil {
		return err
	}
	if session.CurrentStep == nil {
		out.Line("Session %s: %s", session.ID, session.Status)
		return nil
	}
	printStep(out, session.CurrentStep)
	return nil
}

func printStep(out *Output, step *StepResponse) {
	if step == nil {
		return
	}
	out.Line("\n[%s/%s] %s", step.FlowID, step.ID, step.Text)
	for _, opt := range step.Options {
		out.Line("  - %s (%s)", opt.Label, opt.Value)
	}
}

func leadRows(lead map[string]any) [][]string {
	keys := make([]string, 0, len(lead))
	for k := range lead {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][]string, len(keys))
	for i, k := range keys {
		rows[i] = []string{k, fmt.Sprint(lead[k])}
	}
	return rows
}

// parseAssignments разбирает значения вида key=value.
func parseAssignments(values []string) (map[string]any, error) {
	result := make(map[string]any, len(values))
	for _, v := range values {
		key, value, ok := strings.Cut(v, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: expected key=value", v)
		}
		result[key] = value
	}
	return result, nil
}
