package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show daily recognition statistics of a camera",
	Example: `  # Today on the default camera
  face-attendance stats

  # A given day on the entrance camera
  face-attendance stats --camera entrance --date 2026-03-02`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().String("camera", "", "Camera id (defaults to ATTENDANCE_DEFAULT_CAMERA)")
	statsCmd.Flags().String("date", "", "Day as YYYY-MM-DD (defaults to today)")
	statsCmd.Flags().Bool("json", false, "Output as JSON")
}

type statsRow struct {
	Date                string  `json:"date"`
	CameraID            string  `json:"camera_id"`
	TotalRecognitions   int64   `json:"total_recognitions"`
	SuccessfulMatches   int64   `json:"successful_matches"`
	FailedMatches       int64   `json:"failed_matches"`
	AvgConfidence       float64 `json:"avg_confidence"`
	AvgProcessingTimeMs float64 `json:"avg_processing_time_ms"`
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	camera := mustGetString(cmd, "camera")
	if camera == "" {
		camera = a.cfg.Attendance.DefaultCameraID
	}
	date := mustGetString(cmd, "date")
	if date == "" {
		date = a.stats.Today()
	}

	stat, err := a.stats.Get(ctx, camera, date)
	if errors.Is(err, database.ErrNotFound) {
		fmt.Printf("No recognitions recorded for camera %s on %s\n", camera, date)
		return nil
	}
	if err != nil {
		return err
	}

	row := statsRow{
		Date:                stat.Date,
		CameraID:            stat.CameraID,
		TotalRecognitions:   stat.TotalRecognitions,
		SuccessfulMatches:   stat.SuccessfulMatches,
		FailedMatches:       stat.FailedMatches,
		AvgConfidence:       stat.AvgConfidence,
		AvgProcessingTimeMs: stat.AvgProcessingTimeMs,
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(row)
	}

	fmt.Println(renderTable([]string{"Metric", "Value"}, [][]string{
		{"Date", row.Date},
		{"Camera", row.CameraID},
		{"Recognitions", strconv.FormatInt(row.TotalRecognitions, 10)},
		{"Matched", strconv.FormatInt(row.SuccessfulMatches, 10)},
		{"Failed", strconv.FormatInt(row.FailedMatches, 10)},
		{"Avg confidence", fmt.Sprintf("%.1f%%", row.AvgConfidence*100)},
		{"Avg processing", fmt.Sprintf("%.1f ms", row.AvgProcessingTimeMs)},
	}, []columnAlignment{alignLeft, alignRight}))
	return nil
}
