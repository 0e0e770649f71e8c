package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestDeadlineSkipsSunday(t *testing.T) {
	out, err := runCLI(t, "deadline", "--start", "2026-10-24T18:00:00Z", "--hours", "10")
	require.NoError(t, err)
	require.Contains(t, out, "deadline: 2026-10-26T04:00:00Z")
	require.Contains(t, out, "business hours: 10.00")
}

func TestDeadlineReadsCalendarFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendar.yaml")
	require.NoError(t, os.WriteFile(path, []byte("day_start_hour: 9\nday_end_hour: 17\n"), 0o600))

	out, err := runCLI(t, "deadline", "--start", "2026-10-19T16:00:00Z", "--hours", "2", "--calendar", path)
	require.NoError(t, err)
	require.Contains(t, out, "deadline: 2026-10-20T10:00:00Z")
}

func TestDeadlineRejectsBadStart(t *testing.T) {
	_, err := runCLI(t, "deadline", "--start", "yesterday")
	require.Error(t, err)
}

func TestTokenRejectsUnknownRole(t *testing.T) {
	_, err := runCLI(t, "token", "--sub", "idp-1", "--role", "janitor")
	require.ErrorContains(t, err, "unknown role")
}
