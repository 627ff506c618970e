package printer

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withoutColor(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		err := Error("Test Error", "This is a test error", []string{})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
	})

	t.Run("returns error with title when including suggestions", func(t *testing.T) {
		err := Error("Test Error", "Explanation", []string{"Try this fix"})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
	})

	t.Run("returns error with title for multiple suggestions", func(t *testing.T) {
		err := Error("Test Error", "Explanation", []string{
			"First option",
			"Second option",
		})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
	})
}

func TestErrorWithContext(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		context := map[string]string{
			"Container": "/data/Crime.gpkg",
			"Layer":     "Crime_data_shp",
		}
		err := ErrorWithContext("Test Error", "Explanation", context, []string{})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
	})

	t.Run("writes sorted context and numbered suggestions", func(t *testing.T) {
		withoutColor(t)
		var buf bytes.Buffer
		writeError(&buf, "Import failed", "A source is missing.",
			map[string]string{"Source": "PoliceBeats.shp", "Missing": ".prj"},
			[]string{"Restore the file", "Edit burrow.yml"})

		expected := "Import failed\n\n" +
			"A source is missing.\n" +
			"\n  Missing: .prj\n  Source: PoliceBeats.shp\n" +
			"\nEither:\n  1. Restore the file\n  2. Edit burrow.yml\n"
		assert.Equal(t, expected, buf.String())
	})
}

func TestPrinter_Writes(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer
	p := New(&buf)

	p.Step("Importing %d sources\n", 5)
	p.Success("Container created\n")
	p.Success("✓ already marked\n")
	p.Warning("%d rows had no coordinates\n", 1)
	p.Info("plain %s\n", "line")

	assert.Equal(t, "→ Importing 5 sources\n"+
		"✓ Container created\n"+
		"✓ already marked\n"+
		"⚠️  1 rows had no coordinates\n"+
		"plain line\n", buf.String())
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{0, "0 minutes 0 seconds"},
		{59*time.Second + 900*time.Millisecond, "0 minutes 59 seconds"},
		{61 * time.Second, "1 minutes 1 seconds"},
		{12*time.Minute + 5*time.Second, "12 minutes 5 seconds"},
		{-time.Second, "0 minutes 0 seconds"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatElapsed(tt.d))
		})
	}
}

func TestPrinter_Elapsed(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Elapsed(95 * time.Second)
	assert.Equal(t, "\nThe run finished in 1 minutes 35 seconds\n", buf.String())
}
