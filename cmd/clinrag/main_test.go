package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func findFlag[T cli.Flag](flags []cli.Flag, name string) T {
	var zero T
	for _, flag := range flags {
		if f, ok := flag.(T); ok && flag.Names()[0] == name {
			return f
		}
	}
	return zero
}

func findCommand(app *cli.App, name string) *cli.Command {
	for _, cmd := range app.Commands {
		if cmd.Name == name {
			return cmd
		}
	}
	return nil
}

// runApp executes the CLI against a scratch database and captures stdout.
func runApp(t *testing.T, dbPath string, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &bytes.Buffer{}
	app.Reader = strings.NewReader(stdin)
	full := append([]string{"clinrag", "--log-level", "error", "--db", dbPath}, args...)
	err := app.Run(full)
	return out.String(), err
}

func TestGlobalFlags(t *testing.T) {
	app := newApp()

	t.Run("db has default value and env var", func(t *testing.T) {
		f := findFlag[*cli.StringFlag](app.Flags, "db")
		require.NotNil(t, f)
		assert.Equal(t, "clinrag.db", f.Value)
		assert.Equal(t, []string{"CLINRAG_DB"}, f.EnvVars)
	})

	t.Run("postgres has no default", func(t *testing.T) {
		f := findFlag[*cli.StringFlag](app.Flags, "postgres")
		require.NotNil(t, f)
		assert.Empty(t, f.Value)
		assert.Equal(t, []string{"CLINRAG_POSTGRES_DSN"}, f.EnvVars)
	})

	t.Run("api-key reads from environment", func(t *testing.T) {
		f := findFlag[*cli.StringFlag](app.Flags, "api-key")
		require.NotNil(t, f)
		assert.Equal(t, []string{"OPENAI_API_KEY"}, f.EnvVars)
	})

	t.Run("quota flags read from environment", func(t *testing.T) {
		tpm := findFlag[*cli.IntFlag](app.Flags, "max-tokens-per-minute")
		rpm := findFlag[*cli.IntFlag](app.Flags, "max-requests-per-minute")
		require.NotNil(t, tpm)
		require.NotNil(t, rpm)
		assert.Equal(t, []string{"OPENAI_MAX_TOKENS_MIN"}, tpm.EnvVars)
		assert.Equal(t, []string{"OPENAI_MAX_REQ_MIN"}, rpm.EnvVars)
	})

	t.Run("every command is registered", func(t *testing.T) {
		for _, name := range []string{"worker", "ingest", "documents", "requeue", "reap", "ask", "lookup", "note", "summarize", "reembed"} {
			assert.NotNil(t, findCommand(app, name), name)
		}
	})
}

func TestLookupSystemRequired(t *testing.T) {
	app := newApp()
	f := findFlag[*cli.StringFlag](findCommand(app, "lookup").Flags, "system")
	require.NotNil(t, f)
	assert.True(t, f.Required)

	_, err := runApp(t, filepath.Join(t.TempDir(), "db"), "", "lookup", "hypertension")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "system")
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := runApp(t, filepath.Join(t.TempDir(), "db"), "", "--log-level", "loud", "documents")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestDocumentLifecycle(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db")
	notePath := filepath.Join(t.TempDir(), "discharge.txt")
	require.NoError(t, os.WriteFile(notePath, []byte("Patient discharged on lisinopril."), 0o600))

	out, err := runApp(t, dbPath, "", "ingest", notePath)
	require.NoError(t, err)
	var id uint64
	var title string
	_, err = fmt.Sscanf(out, "queued %d %s", &id, &title)
	require.NoError(t, err)
	assert.Equal(t, "discharge", title)

	out, err = runApp(t, dbPath, "", "ingest", notePath)
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("duplicate of %d (not_started)", id))

	out, err = runApp(t, dbPath, "Second note body.", "ingest", "--title", "followup")
	require.NoError(t, err)
	assert.Contains(t, out, "queued")
	assert.Contains(t, out, "followup")

	out, err = runApp(t, dbPath, "", "documents", "--stage", "not_started")
	require.NoError(t, err)
	assert.Contains(t, out, "discharge")
	assert.Contains(t, out, "followup")

	out, err = runApp(t, dbPath, "", "documents", "--stage", "completed")
	require.NoError(t, err)
	assert.NotContains(t, out, "discharge")

	_, err = runApp(t, dbPath, "", "requeue", fmt.Sprint(id))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not_started")

	out, err = runApp(t, dbPath, "", "reap", "--older-than", "1m")
	require.NoError(t, err)
	assert.Contains(t, out, "requeued 0 stale document(s)")
}

func TestCommandValidation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"stdin without title", []string{"ingest"}, "--title"},
		{"unknown stage", []string{"documents", "--stage", "archived"}, "archived"},
		{"requeue without ids", []string{"requeue"}, "document id"},
		{"requeue bad id", []string{"requeue", "abc"}, "invalid document id"},
		{"ask without question", []string{"ask"}, "question"},
		{"unknown code system", []string{"lookup", "--system", "SNOMED", "asthma"}, "SNOMED"},
		{"zero batch size", []string{"reembed", "--batch-size", "0"}, "batch-size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runApp(t, dbPath, "", tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
