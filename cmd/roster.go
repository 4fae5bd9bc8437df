package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/database"
	"gopkg.in/yaml.v3"
)

// RosterEntry is one student of an enrollment roster file.
type RosterEntry struct {
	StudentID string `yaml:"student_id"`
	ProfileID string `yaml:"profile_id"`
	FullName  string `yaml:"full_name"`
	Role      string `yaml:"role"`
	Selfie    string `yaml:"selfie"` // relative paths resolve against the roster file
}

type rosterFile struct {
	Students []RosterEntry `yaml:"students"`
}

// ClassEntry is one class of a timetable file.
type ClassEntry struct {
	ClassID  string              `yaml:"class_id"`
	Name     string              `yaml:"name"`
	Schedule map[string][]string `yaml:"schedule"` // weekday name -> "HH:MM-HH:MM" slots
	Students []string            `yaml:"students"`
}

type classesFile struct {
	Classes []ClassEntry `yaml:"classes"`
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// loadRoster reads a roster and checks every entry names a student and a selfie.
func loadRoster(path string) ([]RosterEntry, error) {
	var f rosterFile
	if err := readYAML(path, &f); err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	seen := make(map[string]bool, len(f.Students))
	var errs []error
	for i := range f.Students {
		e := &f.Students[i]
		e.StudentID = strings.TrimSpace(e.StudentID)
		e.ProfileID = strings.TrimSpace(e.ProfileID)
		if e.StudentID == "" {
			errs = append(errs, fmt.Errorf("entry %d: student_id is required", i+1))
			continue
		}
		if seen[e.StudentID] {
			errs = append(errs, fmt.Errorf("entry %d: duplicate student_id %q", i+1, e.StudentID))
			continue
		}
		seen[e.StudentID] = true
		if e.ProfileID == "" {
			e.ProfileID = e.StudentID
		}
		if e.Selfie == "" {
			errs = append(errs, fmt.Errorf("entry %d (%s): selfie is required", i+1, e.StudentID))
			continue
		}
		if !filepath.IsAbs(e.Selfie) {
			e.Selfie = filepath.Join(base, e.Selfie)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("%w: %w", database.ErrInvalidInput, err)
	}
	return f.Students, nil
}

// loadClasses reads a timetable file and converts it into schedules.
func loadClasses(path string) ([]ClassEntry, []database.ClassSchedule, error) {
	var f classesFile
	if err := readYAML(path, &f); err != nil {
		return nil, nil, err
	}

	schedules := make([]database.ClassSchedule, 0, len(f.Classes))
	for i := range f.Classes {
		c := &f.Classes[i]
		c.ClassID = strings.TrimSpace(c.ClassID)
		if c.ClassID == "" {
			return nil, nil, fmt.Errorf("%w: class %d: class_id is required", database.ErrInvalidInput, i+1)
		}
		s, err := c.toSchedule()
		if err != nil {
			return nil, nil, fmt.Errorf("class %s: %w", c.ClassID, err)
		}
		schedules = append(schedules, s)
	}
	return f.Classes, schedules, nil
}

func (c ClassEntry) toSchedule() (database.ClassSchedule, error) {
	slots, err := database.ScheduleFromStrings(c.Schedule)
	if err != nil {
		return database.ClassSchedule{}, err
	}
	return database.ClassSchedule{ClassID: c.ClassID, Name: c.Name, Slots: slots}, nil
}
