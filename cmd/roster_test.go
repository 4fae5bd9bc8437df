package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadRoster(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "roster.yaml", `
students:
  - student_id: " S001 "
    full_name: Alice Novak
    selfie: selfies/alice.jpg
  - student_id: S002
    profile_id: p-bob
    full_name: Bob Dvorak
    role: teacher
    selfie: /abs/bob.jpg
`)

	entries, err := loadRoster(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "S001", entries[0].StudentID)
	assert.Equal(t, "S001", entries[0].ProfileID)
	assert.Equal(t, filepath.Join(dir, "selfies", "alice.jpg"), entries[0].Selfie)

	assert.Equal(t, "p-bob", entries[1].ProfileID)
	assert.Equal(t, "teacher", entries[1].Role)
	assert.Equal(t, "/abs/bob.jpg", entries[1].Selfie)
}

func TestLoadRoster_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing student id", "students:\n  - full_name: X\n    selfie: a.jpg\n"},
		{"missing selfie", "students:\n  - student_id: S1\n"},
		{"duplicate", "students:\n  - student_id: S1\n    selfie: a.jpg\n  - student_id: S1\n    selfie: b.jpg\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "roster.yaml", tt.content)
			_, err := loadRoster(path)
			require.ErrorIs(t, err, database.ErrInvalidInput)
		})
	}
}

func TestLoadRoster_BadYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "roster.yaml", "students: [unclosed")
	_, err := loadRoster(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing")
}

func TestLoadClasses(t *testing.T) {
	path := writeFile(t, t.TempDir(), "classes.yaml", `
classes:
  - class_id: MATH101
    name: Algebra
    schedule:
      monday: ["09:00-10:30"]
      Wed: ["14:00-15:00", "08:00-09:00"]
    students: [S001, S002]
  - class_id: ART
    name: Drawing
`)

	entries, schedules, err := loadClasses(path)
	require.NoError(t, err)
	require.Len(t, schedules, 2)
	require.Len(t, entries, 2)

	math := schedules[0]
	assert.Equal(t, "MATH101", math.ClassID)
	assert.Equal(t, []database.TimeRange{{Start: "09:00", End: "10:30"}}, math.Slots[time.Monday])
	assert.Len(t, math.Slots[time.Wednesday], 2)
	assert.Equal(t, []string{"S001", "S002"}, entries[0].Students)

	assert.Empty(t, schedules[1].Slots)
}

func TestLoadClasses_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing id", "classes:\n  - name: X\n"},
		{"bad weekday", "classes:\n  - class_id: C\n    schedule:\n      funday: [\"09:00-10:00\"]\n"},
		{"bad range", "classes:\n  - class_id: C\n    schedule:\n      monday: [\"10:00-09:00\"]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "classes.yaml", tt.content)
			_, _, err := loadClasses(path)
			require.ErrorIs(t, err, database.ErrInvalidInput)
		})
	}
}

func TestLoadClasses_PadsSingleDigitHours(t *testing.T) {
	path := writeFile(t, t.TempDir(), "classes.yaml", "classes:\n  - class_id: C\n    schedule:\n      monday: [\"8:00-9:30\"]\n")

	_, schedules, err := loadClasses(path)
	require.NoError(t, err)
	assert.Equal(t, []database.TimeRange{{Start: "08:00", End: "09:30"}}, schedules[0].Slots[time.Monday])
}

func TestFormatSlots(t *testing.T) {
	s := database.ClassSchedule{Slots: map[time.Weekday][]database.TimeRange{
		time.Wednesday: {{Start: "14:00", End: "15:00"}},
		time.Monday:    {{Start: "09:00", End: "10:30"}},
	}}
	assert.Equal(t, "Mon 09:00-10:30, Wed 14:00-15:00", formatSlots(s))
	assert.Equal(t, "-", formatSlots(database.ClassSchedule{}))
}
