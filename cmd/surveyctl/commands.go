package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"survey-platform/internal/notify"
	"survey-platform/internal/rbac"
	"survey-platform/internal/reporting"
	"survey-platform/internal/survey"
	"survey-platform/pkg/logger"

	"github.com/spf13/cobra"
)

const defaultStoreFile = "surveys.json"

// cli carries the persistent flags shared by every subcommand.
type cli struct {
	out, errOut io.Writer

	file    string
	role    string
	actorID string
	env     string
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "surveyctl",
		Short: "Operate the customer survey lifecycle",
		Long: `surveyctl runs survey lifecycle operations against a local JSON store.

Every command acts as the identity given by --as and --actor:
  lead_manager - create surveys and submit them for review
  coe          - review and publish surveys
  customer     - answer and complete your own surveys (--actor is the customer id)`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	fileDefault := defaultStoreFile
	if v := os.Getenv("SURVEYCTL_FILE"); v != "" {
		fileDefault = v
	}
	root.PersistentFlags().StringVar(&c.file, "file", fileDefault, "path of the JSON survey store; writers serialize on <file>.lock (env SURVEYCTL_FILE)")
	root.PersistentFlags().StringVar(&c.role, "as", "", "role to act as: lead_manager, coe, customer")
	root.PersistentFlags().StringVar(&c.actorID, "actor", "", "user or customer id to act as")
	root.PersistentFlags().StringVar(&c.env, "env", "local", "log level profile (local, dev, staging, production)")

	root.AddCommand(
		c.createCmd(),
		c.idCmd("submit", "Submit a draft for CoE review", func(svc *survey.Service, cmd *cobra.Command, actor survey.Actor, id string) (survey.Survey, error) {
			return svc.SubmitForReview(cmd.Context(), actor, id)
		}),
		c.reviewCmd(),
		c.idCmd("publish", "Publish an approved survey and notify its customer", func(svc *survey.Service, cmd *cobra.Command, actor survey.Actor, id string) (survey.Survey, error) {
			return svc.Publish(cmd.Context(), actor, id)
		}),
		c.answerCmd(),
		c.idCmd("complete", "Submit the final survey", func(svc *survey.Service, cmd *cobra.Command, actor survey.Actor, id string) (survey.Survey, error) {
			return svc.SubmitFinal(cmd.Context(), actor, id)
		}),
		c.showCmd(),
		c.listCmd(),
		c.exportCmd(),
		c.summaryCmd(),
	)
	return root
}

func (c *cli) repo() *survey.FileRepo { return survey.NewFileRepo(c.file) }

func (c *cli) service(cmd *cobra.Command) *survey.Service {
	log := logger.NewText(c.errOut, c.env)
	cmd.SetContext(logger.With(cmd.Context(), log))
	return survey.NewService(c.repo(), notify.Log{})
}

func (c *cli) actor() (survey.Actor, error) {
	role, ok := rbac.ParseRole(strings.TrimSpace(c.role))
	if !ok || !rbac.Assignable(role) {
		return survey.Actor{}, fmt.Errorf("--as must be one of lead_manager, coe, customer, got %q", c.role)
	}
	if strings.TrimSpace(c.actorID) == "" {
		return survey.Actor{}, fmt.Errorf("--actor is required")
	}
	return survey.Actor{ID: strings.TrimSpace(c.actorID), Role: role}, nil
}

type idAction func(svc *survey.Service, cmd *cobra.Command, actor survey.Actor, id string) (survey.Survey, error)

// idCmd builds a "<verb> SURVEY_ID" command that prints the resulting snapshot.
func (c *cli) idCmd(use, short string, run idAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " SURVEY_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := c.actor()
			if err != nil {
				return err
			}
			sv, err := run(c.service(cmd), cmd, actor, args[0])
			if err != nil {
				return err
			}
			return c.printJSON(survey.Export(sv))
		},
	}
}

func (c *cli) createCmd() *cobra.Command {
	var (
		title     string
		questions []string
		start     string
		end       string
		customer  string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Draft a new survey",
		Example: `  surveyctl create --as lead_manager --actor lm-1 \
    --title "Onboarding" --question "How was setup?" --question "Would you recommend us?" \
    --start 2026-03-01 --end 2026-03-31 --customer C1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor, err := c.actor()
			if err != nil {
				return err
			}
			startDate, err := parseDay("--start", start)
			if err != nil {
				return err
			}
			endDate, err := parseDay("--end", end)
			if err != nil {
				return err
			}
			sv, err := c.service(cmd).Create(cmd.Context(), actor, survey.CreateInput{
				Title:           title,
				Questions:       questions,
				StartDate:       startDate,
				EndDate:         endDate,
				OwnerCustomerID: customer,
			})
			if err != nil {
				return err
			}
			return c.printJSON(survey.Export(sv))
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "survey title")
	cmd.Flags().StringArrayVar(&questions, "question", nil, "question text (repeatable, order is kept)")
	cmd.Flags().StringVar(&start, "start", "", "start date, YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "end date, YYYY-MM-DD")
	cmd.Flags().StringVar(&customer, "customer", "", "owning customer id")
	return cmd
}

func (c *cli) reviewCmd() *cobra.Command {
	var decision string
	cmd := c.idCmd("review", "Approve, reject or request changes on a survey under review", func(svc *survey.Service, cmd *cobra.Command, actor survey.Actor, id string) (survey.Survey, error) {
		return svc.Review(cmd.Context(), actor, id, decision)
	})
	cmd.Flags().StringVar(&decision, "decision", "", "approve, reject or request_changes")
	_ = cmd.MarkFlagRequired("decision")
	return cmd
}

func (c *cli) answerCmd() *cobra.Command {
	var pairs []string
	cmd := c.idCmd("answer", "Record answers as the owning customer", func(svc *survey.Service, cmd *cobra.Command, actor survey.Actor, id string) (survey.Survey, error) {
		answers, err := parseAnswers(pairs)
		if err != nil {
			return survey.Survey{}, err
		}
		return svc.FillResponses(cmd.Context(), actor, id, answers)
	})
	cmd.Flags().StringArrayVar(&pairs, "set", nil, `answer as "question=answer" (repeatable)`)
	return cmd
}

func (c *cli) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show SURVEY_ID",
		Short: "Print a survey snapshot with its audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := c.actor()
			if err != nil {
				return err
			}
			snap, err := c.service(cmd).Snapshot(cmd.Context(), actor, args[0])
			if err != nil {
				return err
			}
			return c.printJSON(snap)
		},
	}
}

func (c *cli) listCmd() *cobra.Command {
	var (
		status   string
		customer string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List surveys visible to the acting identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor, err := c.actor()
			if err != nil {
				return err
			}
			f := survey.ListFilter{OwnerCustomerID: customer, Limit: limit}
			if status != "" {
				st, ok := survey.ParseStatus(status)
				if !ok {
					return fmt.Errorf("unknown status %q", status)
				}
				f.Status = st
			}
			rows, err := c.service(cmd).List(cmd.Context(), actor, f)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tCUSTOMER\tANSWERED\tTITLE")
			for _, sv := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\n", sv.ID, sv.Status, sv.OwnerCustomerID, len(sv.Responses), len(sv.Questions), sv.Title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only surveys in this status")
	cmd.Flags().StringVar(&customer, "customer", "", "only surveys owned by this customer")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows (0 = all)")
	return cmd
}

func (c *cli) exportCmd() *cobra.Command {
	var (
		status   string
		customer string
		out      string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write surveys as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.requireStaff(); err != nil {
				return err
			}
			w := c.out
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			n, err := reporting.NewService(c.repo()).ExportCSV(cmd.Context(), w, reporting.ExportRequest{
				Status:          survey.Status(status),
				OwnerCustomerID: customer,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.errOut, "exported %d survey(s)\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only surveys in this status")
	cmd.Flags().StringVar(&customer, "customer", "", "only surveys owned by this customer")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	return cmd
}

func (c *cli) summaryCmd() *cobra.Command {
	var customer string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print survey counts per status and completion rate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.requireStaff(); err != nil {
				return err
			}
			sum, err := reporting.NewService(c.repo()).StatusSummary(cmd.Context(), reporting.SummaryRequest{OwnerCustomerID: customer})
			if err != nil {
				return err
			}
			return c.printJSON(sum)
		},
	}
	cmd.Flags().StringVar(&customer, "customer", "", "only surveys owned by this customer")
	return cmd
}

// requireStaff limits reports to lead managers and the CoE.
func (c *cli) requireStaff() error {
	actor, err := c.actor()
	if err != nil {
		return err
	}
	if actor.Role != rbac.RoleLeadManager && actor.Role != rbac.RoleCoE {
		return fmt.Errorf("%w: reports require lead_manager or coe", survey.ErrPermission)
	}
	return nil
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseDay(flag, raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, fmt.Errorf("%s is required", flag)
	}
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD, got %q", flag, raw)
	}
	return t, nil
}

// parseAnswers splits "question=answer" pairs on the first '='.
func parseAnswers(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		q, a, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(q) == "" {
			return nil, fmt.Errorf("--set expects question=answer, got %q", p)
		}
		out[q] = a
	}
	return out, nil
}
