package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"  yes  \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"yep\n", false},
		{"y", true},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		got, err := confirm(strings.NewReader(tt.input), &out, "Go? ")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
		assert.Equal(t, "Go? ", out.String())
	}
}

func newFlagCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("subject", "", "")
	cmd.Flags().String("start", "", "")
	cmd.Flags().String("end", "", "")
	cmd.Flags().String("duration", "", "")
	cmd.Flags().String("timezone", "", "")
	cmd.Flags().StringSlice("attendees", nil, "")
	cmd.Flags().String("location", "", "")
	cmd.Flags().String("body", "", "")
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestIntentFromFlags(t *testing.T) {
	cmd := newFlagCommand(t,
		"--subject", "Tutoring",
		"--start", "2025-06-12T12:00:00",
		"--duration", "45m",
		"--attendees", "alice, bob",
		"--location", "Room 4",
	)

	m, err := intentFromFlags(cmd, "Pacific Standard Time")
	require.NoError(t, err)

	assert.Equal(t, "Tutoring", m.Subject)
	assert.Equal(t, "2025-06-12T12:00:00", m.StartDateTime)
	assert.Equal(t, "2025-06-12T12:45:00", m.EndDateTime)
	assert.Equal(t, "Pacific Standard Time", m.StartTimeZone)
	assert.Equal(t, "Pacific Standard Time", m.EndTimeZone)
	assert.Equal(t, []string{"alice", "bob"}, m.Attendees)
	assert.Equal(t, "Room 4", m.Location)
}

func TestIntentFromFlagsTimeZoneOverride(t *testing.T) {
	cmd := newFlagCommand(t,
		"--subject", "Sync",
		"--start", "2025-06-12T09:00:00",
		"--end", "2025-06-12T10:00:00",
		"--timezone", "UTC",
	)

	m, err := intentFromFlags(cmd, "Pacific Standard Time")
	require.NoError(t, err)
	assert.Equal(t, "UTC", m.StartTimeZone)
	assert.Equal(t, "2025-06-12T10:00:00", m.EndDateTime)
}

func TestIntentFromFlagsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing subject", []string{"--start", "2025-06-12T12:00:00"}},
		{"missing start", []string{"--subject", "Sync"}},
		{"end and duration", []string{"--subject", "Sync", "--start", "2025-06-12T12:00:00", "--end", "2025-06-12T13:00:00", "--duration", "1h"}},
		{"bad duration", []string{"--subject", "Sync", "--start", "2025-06-12T12:00:00", "--duration=-5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := intentFromFlags(newFlagCommand(t, tt.args...), "UTC")
			assert.Error(t, err)
		})
	}
}
