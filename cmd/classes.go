package cmd

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/spf13/cobra"
)

var classesCmd = &cobra.Command{
	Use:   "classes",
	Short: "Manage class timetables and rosters",
}

var classesImportCmd = &cobra.Command{
	Use:   "import <classes.yaml>",
	Short: "Upsert classes, their weekly schedule and enrolled students",
	Long: `Upsert classes from a timetable file. Existing schedules are replaced,
students are added to the class roster.

Timetable format:
  classes:
    - class_id: MATH101
      name: Algebra
      schedule:
        monday: ["09:00-10:30"]
        wed: ["09:00-10:30", "14:00-15:00"]
      students: [S001, S002]`,
	Args: cobra.ExactArgs(1),
	RunE: runClassesImport,
}

func init() {
	rootCmd.AddCommand(classesCmd)
	classesCmd.AddCommand(classesImportCmd)

	classesImportCmd.Flags().Bool("dry-run", false, "Parse and print the timetable without writing")
}

func runClassesImport(cmd *cobra.Command, args []string) error {
	entries, schedules, err := loadClasses(args[0])
	if err != nil {
		return err
	}

	if !mustGetBool(cmd, "dry-run") {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		pool, err := postgres.NewPool(&cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		ctx := context.Background()
		if err := pool.Migrate(ctx); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		if err := importClasses(ctx, postgres.NewClassRepository(pool), entries, schedules); err != nil {
			return err
		}
	}

	rows := make([][]string, 0, len(schedules))
	for i, s := range schedules {
		rows = append(rows, []string{s.ClassID, s.Name, formatSlots(s), strconv.Itoa(len(entries[i].Students))})
	}
	fmt.Println(renderTable([]string{"Class", "Name", "Schedule", "Students"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}))
	return nil
}

// importClasses saves every schedule before enrolling its students.
func importClasses(ctx context.Context, store database.ClassStore, entries []ClassEntry, schedules []database.ClassSchedule) error {
	for i, s := range schedules {
		if err := store.SaveClass(ctx, s); err != nil {
			return fmt.Errorf("saving class %s: %w", s.ClassID, err)
		}
		for _, studentID := range entries[i].Students {
			studentID = strings.TrimSpace(studentID)
			if studentID == "" {
				continue
			}
			if err := store.EnrollStudent(ctx, s.ClassID, studentID); err != nil {
				return fmt.Errorf("enrolling %s in %s: %w", studentID, s.ClassID, err)
			}
		}
	}
	return nil
}

// formatSlots renders "Mon 09:00-10:30, Wed 14:00-15:00" in weekday order.
func formatSlots(s database.ClassSchedule) string {
	days := make([]time.Weekday, 0, len(s.Slots))
	for d := range s.Slots {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	var parts []string
	for _, d := range days {
		for _, r := range s.Slots[d] {
			parts = append(parts, d.String()[:3]+" "+r.String())
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}
