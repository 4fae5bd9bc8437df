package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/spf13/cobra"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Inspect recorded attendance",
}

var attendanceTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List attendance recorded since local midnight",
	Args:  cobra.NoArgs,
	RunE:  runAttendanceToday,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)
	attendanceCmd.AddCommand(attendanceTodayCmd)

	attendanceTodayCmd.Flags().String("class", "", "Only this class")
	attendanceTodayCmd.Flags().Bool("json", false, "Output as JSON")
}

type attendanceRow struct {
	ID         string  `json:"id"`
	StudentID  string  `json:"student_id"`
	ClassID    string  `json:"class_id,omitempty"`
	CameraID   string  `json:"camera_id"`
	Confidence float64 `json:"confidence"`
	Verified   bool    `json:"verified"`
	MarkedAt   string  `json:"marked_at"`
}

func toAttendanceRows(events []database.AttendanceEvent) []attendanceRow {
	rows := make([]attendanceRow, 0, len(events))
	for i := range events {
		e := &events[i]
		rows = append(rows, attendanceRow{
			ID:         e.ID,
			StudentID:  e.StudentID,
			ClassID:    e.ClassID,
			CameraID:   e.CameraID,
			Confidence: e.Confidence,
			Verified:   e.Verified,
			MarkedAt:   e.MarkedAt.Local().Format("15:04:05"),
		})
	}
	return rows
}

func runAttendanceToday(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	events, err := a.attendance.Today(ctx, mustGetString(cmd, "class"))
	if err != nil {
		return err
	}

	rows := toAttendanceRows(events)
	if mustGetBool(cmd, "json") {
		return outputJSON(rows)
	}
	if len(rows) == 0 {
		fmt.Println("No attendance recorded today")
		return nil
	}

	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		class := r.ClassID
		if class == "" {
			class = "-"
		}
		cells = append(cells, []string{r.MarkedAt, r.StudentID, class, r.CameraID,
			fmt.Sprintf("%.0f%%", r.Confidence*100), strconv.FormatBool(r.Verified)})
	}
	fmt.Println(renderTable([]string{"Time", "Student", "Class", "Camera", "Confidence", "Verified"}, cells,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
	fmt.Printf("\n%d attendance records\n", len(rows))
	return nil
}
