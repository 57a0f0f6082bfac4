package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/control"
)

var (
	actionsTenant   string
	actionsStatus   string
	actionsLimit    int
	decideMessage   string
	decideReviewer  string
	actionsPlanID   string
	auditVerifyFlag bool
)

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "Review queued actions and their audit trail",
}

var actionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued actions, highest priority first",
	RunE:  actionsList,
}

var actionsDecideCmd = &cobra.Command{
	Use:   "decide <plan-id> <approve|reject|edit>",
	Short: "Approve, reject or edit a pending action",
	Args:  cobra.ExactArgs(2),
	RunE:  actionsDecide,
}

var actionsAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the signed audit trail",
	RunE:  actionsAudit,
}

func init() {
	actionsListCmd.Flags().StringVar(&actionsTenant, "tenant", "", "tenant ID (required)")
	actionsListCmd.Flags().StringVar(&actionsStatus, "status", string(control.StatusPending), "status filter (PENDING, APPROVED, REJECTED, EXECUTED)")
	actionsListCmd.Flags().IntVar(&actionsLimit, "limit", 20, "maximum actions to show")
	_ = actionsListCmd.MarkFlagRequired("tenant")

	actionsDecideCmd.Flags().StringVar(&decideMessage, "message", "", "replacement message (required for edit)")
	actionsDecideCmd.Flags().StringVar(&decideReviewer, "reviewer", os.Getenv("USER"), "reviewer recorded in the audit trail")

	actionsAuditCmd.Flags().StringVar(&actionsTenant, "tenant", "", "tenant ID (required)")
	actionsAuditCmd.Flags().StringVar(&actionsPlanID, "plan", "", "restrict to one plan")
	actionsAuditCmd.Flags().IntVar(&actionsLimit, "limit", 50, "maximum entries to show")
	actionsAuditCmd.Flags().BoolVar(&auditVerifyFlag, "verify", false, "verify each entry's HMAC signature")
	_ = actionsAuditCmd.MarkFlagRequired("tenant")

	actionsCmd.AddCommand(actionsListCmd, actionsDecideCmd, actionsAuditCmd)
	rootCmd.AddCommand(actionsCmd)
}

// openControl opens the SQLite action queue and audit log named by config.
func openControl() (*control.Orchestrator, *control.Signer, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	signer, err := control.NewSigner(cfg.SigningKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating audit signer: %w", err)
	}
	store, audit, err := openActionStores(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	closeAll := func() {
		_ = audit.Close()
		_ = store.Close()
	}
	return control.NewOrchestrator(store, audit), signer, closeAll, nil
}

func actionsList(cmd *cobra.Command, args []string) error {
	ctx, cancel := withTimeout(cmd.Context())
	defer cancel()

	orch, _, closeAll, err := openControl()
	if err != nil {
		return err
	}
	defer closeAll()

	list, err := orch.List(ctx, control.ListFilter{
		TenantID: actionsTenant,
		Status:   control.Status(actionsStatus),
		Limit:    actionsLimit,
	})
	if err != nil {
		return fmt.Errorf("listing actions: %w", err)
	}
	renderActions(cmd.OutOrStdout(), list)
	return nil
}

func actionsDecide(cmd *cobra.Command, args []string) error {
	ctx, cancel := withTimeout(cmd.Context())
	defer cancel()

	orch, _, closeAll, err := openControl()
	if err != nil {
		return err
	}
	defer closeAll()

	a, err := orch.Decide(ctx, args[0], control.Decision{
		Type:     control.DecisionType(args[1]),
		Message:  decideMessage,
		Reviewer: decideReviewer,
	})
	if err != nil {
		return fmt.Errorf("deciding %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s\n", checkMark(true), a.ID(), a.Status)
	return nil
}

func actionsAudit(cmd *cobra.Command, args []string) error {
	ctx, cancel := withTimeout(cmd.Context())
	defer cancel()

	orch, signer, closeAll, err := openControl()
	if err != nil {
		return err
	}
	defer closeAll()

	entries, err := orch.Audit(ctx, actionsTenant, actionsPlanID, actionsLimit)
	if err != nil {
		return fmt.Errorf("querying audit log: %w", err)
	}
	var verify func(control.AuditEntry) bool
	if auditVerifyFlag {
		verify = signer.VerifyEntry
	}
	if bad := renderAudit(cmd.OutOrStdout(), entries, verify); bad > 0 {
		return fmt.Errorf("%d audit entries failed signature verification", bad)
	}
	return nil
}
