package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/payroll-engine/report"
)

const shiftsJSON = `{"shifts": [
  {"id": "s-1", "contractor_id": "c1", "role": "Substitute Teacher", "date": "2025-03-10", "hours": "8", "status": "completed", "institution": "Lincoln"},
  {"id": "s-2", "contractor_id": "c1", "role": "Substitute Teacher", "date": "2025-03-11", "hours": "8", "status": "completed", "institution": "Lincoln"},
  {"id": "s-3", "contractor_id": "c1", "role": "Substitute Teacher", "date": "2025-03-12", "hours": "8", "status": "completed", "institution": "Roosevelt"},
  {"id": "s-4", "contractor_id": "c1", "role": "Substitute Teacher", "date": "2025-03-13", "hours": "10", "status": "completed", "institution": "Roosevelt"},
  {"id": "s-5", "contractor_id": "c2", "role": "Substitute Teacher", "date": "2025-03-13", "hours": "-2", "status": "completed"}
]}`

// execute runs the CLI against a fresh config in dir.
func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cfgPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		body := "db:\n  path: " + filepath.Join(dir, "payroll.db") + "\nlog:\n  level: warn\n"
		require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))
	}

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestCLI_ImportRunExport(t *testing.T) {
	dir := t.TempDir()
	feed := filepath.Join(dir, "shifts.json")
	require.NoError(t, os.WriteFile(feed, []byte(shiftsJSON), 0o600))

	// GIVEN: An imported feed with one bad shift
	out, err := execute(t, dir, "import-shifts", feed)
	require.NoError(t, err)
	assert.Contains(t, out, "saved 4 shift(s), rejected 1")

	// WHEN: Running the week
	out, err = execute(t, dir, "run", "--as-of", "2025-03-14")
	require.NoError(t, err, out)

	// THEN: The reference total is reported
	assert.Contains(t, out, "925.00")

	// AND: A rerun reports the existing period
	out, err = execute(t, dir, "run", "--as-of", "2025-03-16")
	require.NoError(t, err)
	assert.Contains(t, out, "(existing)")

	// AND: The export has one period row
	xlsx := filepath.Join(dir, "week.xlsx")
	out, err = execute(t, dir, "export", "--week", "2025-03-10", "--out", xlsx)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 1 period(s)")

	f, err := excelize.OpenFile(xlsx)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(report.PeriodsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	// AND: Placement state survived across processes
	out, err = execute(t, dir, "placement", "c1")
	require.NoError(t, err)
	assert.Contains(t, out, "Assignments   4 / 30")
	assert.Contains(t, out, "Institutions  2 / 3")
	assert.Contains(t, out, "Bonus counter 4 / 30")

	out, err = execute(t, dir, "process-bonuses", "--as-of", "2025-03-14")
	require.NoError(t, err)
	assert.Contains(t, out, "No earned bonuses.")
}

func TestCLI_PlacementMarkPlacedRejected(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, dir, "placement", "c1", "--mark-placed")
	assert.Error(t, err)
}

func TestCLI_BadDate(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, dir, "run", "--as-of", "March 14")
	assert.Error(t, err)
}
