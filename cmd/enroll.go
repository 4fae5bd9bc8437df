package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/kozaktomas/face-attendance/internal/approval"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

const pendingTimeLayout = "2006-01-02 15:04"

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Manage enrollment submissions",
}

var enrollPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List enrollment submissions",
	Example: `  # Pending submissions
  face-attendance enroll pending

  # Rejected submissions of students named like "novak"
  face-attendance enroll pending --status rejected --q novak`,
	Args: cobra.NoArgs,
	RunE: runEnrollPending,
}

var enrollApproveCmd = &cobra.Command{
	Use:   "approve <pending-id>",
	Short: "Approve a pending submission and activate its embedding",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnrollApprove,
}

var enrollRejectCmd = &cobra.Command{
	Use:   "reject <pending-id>",
	Short: "Reject a pending submission",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnrollReject,
}

var enrollImportCmd = &cobra.Command{
	Use:   "import <roster.yaml>",
	Short: "Submit selfies listed in a roster file",
	Long: `Detect the face in every selfie listed in the roster and submit it for
approval. Each selfie must show exactly one face.

Roster format:
  students:
    - student_id: S001
      full_name: Alice Novak
      selfie: selfies/alice.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runEnrollImport,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	enrollCmd.AddCommand(enrollPendingCmd, enrollApproveCmd, enrollRejectCmd, enrollImportCmd)

	enrollPendingCmd.Flags().String("status", "pending", "Status to list: pending, approved, rejected")
	enrollPendingCmd.Flags().String("q", "", "Filter by name or student id")
	enrollPendingCmd.Flags().Int("limit", 100, "Maximum number of rows")
	enrollPendingCmd.Flags().Bool("json", false, "Output as JSON")

	enrollRejectCmd.Flags().String("reason", "", "Reason stored with the rejection")

	enrollImportCmd.Flags().Bool("approve", false, "Approve each submission right after it is created")
}

// pendingRow is the JSON form of a submission, without the embedding.
type pendingRow struct {
	PendingID    string `json:"pending_id"`
	StudentID    string `json:"student_id"`
	FullName     string `json:"full_name"`
	Status       string `json:"status"`
	HasSelfie    bool   `json:"has_selfie"`
	RejectReason string `json:"reject_reason,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func toPendingRows(items []database.PendingBiometric) []pendingRow {
	rows := make([]pendingRow, 0, len(items))
	for i := range items {
		p := &items[i]
		rows = append(rows, pendingRow{
			PendingID:    p.PendingID,
			StudentID:    p.StudentID,
			FullName:     p.FullName,
			Status:       string(p.Status),
			HasSelfie:    p.SelfieRef != "",
			RejectReason: p.RejectReason,
			CreatedAt:    p.CreatedAt.Local().Format(pendingTimeLayout),
		})
	}
	return rows
}

func runEnrollPending(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	items, err := a.approval.List(ctx, database.PendingStatus(mustGetString(cmd, "status")),
		mustGetString(cmd, "q"), mustGetInt(cmd, "limit"))
	if err != nil {
		return err
	}

	rows := toPendingRows(items)
	if mustGetBool(cmd, "json") {
		return outputJSON(rows)
	}
	if len(rows) == 0 {
		fmt.Println("No submissions found")
		return nil
	}

	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		cells = append(cells, []string{r.PendingID, r.StudentID, r.FullName, r.Status, strconv.FormatBool(r.HasSelfie), r.CreatedAt})
	}
	fmt.Println(renderTable([]string{"Pending ID", "Student", "Name", "Status", "Selfie", "Submitted"}, cells, nil))
	return nil
}

func runEnrollApprove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	active, err := a.approval.Approve(ctx, args[0])
	if err != nil {
		return fmt.Errorf("approving %s: %w", args[0], err)
	}
	fmt.Printf("Approved %s: student %s is active (biometric #%d)\n", args[0], active.StudentID, active.ID)
	return nil
}

func runEnrollReject(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.approval.Reject(ctx, args[0], mustGetString(cmd, "reason")); err != nil {
		return fmt.Errorf("rejecting %s: %w", args[0], err)
	}
	fmt.Printf("Rejected %s\n", args[0])
	return nil
}

// importOutcome is the result of one roster entry.
type importOutcome struct {
	StudentID string
	PendingID string
	Err       error
}

func runEnrollImport(cmd *cobra.Command, args []string) error {
	entries, err := loadRoster(args[0])
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("Roster is empty")
		return nil
	}

	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	autoApprove := mustGetBool(cmd, "approve")

	bar := progressbar.NewOptions(len(entries),
		progressbar.OptionSetDescription("Enrolling students"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("students"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	outcomes := make([]importOutcome, 0, len(entries))
	for _, e := range entries {
		pendingID, err := importStudent(ctx, a.embedder, a.approval, e, autoApprove)
		outcomes = append(outcomes, importOutcome{StudentID: e.StudentID, PendingID: pendingID, Err: err})
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	fmt.Println()

	okLabel := "submitted"
	if autoApprove {
		okLabel = "approved"
	}
	return printImportSummary(outcomes, okLabel)
}

// importStudent detects the single face of the selfie and submits it.
func importStudent(ctx context.Context, detector submissionDetector, manager submitter, e RosterEntry, autoApprove bool) (string, error) {
	image, err := os.ReadFile(e.Selfie) //nolint:gosec // path comes from the roster
	if err != nil {
		return "", fmt.Errorf("reading selfie: %w", err)
	}

	resp, err := detector.DetectFaces(ctx, image)
	if err != nil {
		return "", err
	}
	face, err := embedder.SingleFace(resp)
	if err != nil {
		return "", err
	}

	pendingID, err := manager.Submit(ctx, approval.Submission{
		ProfileID: e.ProfileID,
		StudentID: e.StudentID,
		FullName:  e.FullName,
		Role:      e.Role,
		Embedding: face.Embedding,
		Selfie:    image,
	})
	if err != nil {
		return "", err
	}
	if autoApprove {
		if _, err := manager.Approve(ctx, pendingID); err != nil {
			return pendingID, fmt.Errorf("approving: %w", err)
		}
	}
	return pendingID, nil
}

type submissionDetector interface {
	DetectFaces(ctx context.Context, imageData []byte) (*embedder.FaceResponse, error)
}

type submitter interface {
	Submit(ctx context.Context, sub approval.Submission) (string, error)
	Approve(ctx context.Context, pendingID string) (*database.ActiveBiometric, error)
}

func printImportSummary(outcomes []importOutcome, okLabel string) error {
	var failed int
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		status := okLabel
		if o.Err != nil {
			failed++
			status = o.Err.Error()
		}
		rows = append(rows, []string{o.StudentID, o.PendingID, status})
	}
	fmt.Println(renderTable([]string{"Student", "Pending ID", "Result"}, rows, nil))
	fmt.Printf("\nSummary: %d %s, %d failed\n", len(outcomes)-failed, okLabel, failed)
	if failed > 0 {
		return errors.New("some roster entries failed")
	}
	return nil
}
