package cgi

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func TestRunParsesHeadersAndBody(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\nprintf 'Content-Type: text/plain\\r\\nStatus: 201\\r\\n\\r\\nhello world'\n")

	result, err := Run(Request{
		Interpreter: "/bin/sh",
		ScriptPath:  script,
		Method:      "GET",
		Path:        "/cgi-bin/script.sh",
		ServerName:  "example.com",
		ServerPort:  8080,
	})

	require.NoError(t, err)
	require.Equal(t, 201, result.Status)
	require.Equal(t, "text/plain", result.ContentType)
	require.Equal(t, "hello world", string(result.Body))
}

func TestRunDefaultsStatusWhenUnspecified(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\nprintf 'Content-Type: text/html\\r\\n\\r\\n<p>ok</p>'\n")

	result, err := Run(Request{
		Interpreter: "/bin/sh",
		ScriptPath:  script,
		Method:      "GET",
	})

	require.NoError(t, err)
	require.Equal(t, 200, result.Status)
	require.Equal(t, "<p>ok</p>", string(result.Body))
}

func TestRunPassesBodyOnStdin(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\nread line\nprintf 'Content-Type: text/plain\\r\\n\\r\\ngot:%s' \"$line\"\n")

	result, err := Run(Request{
		Interpreter: "/bin/sh",
		ScriptPath:  script,
		Method:      "POST",
		Body:        []byte("hello\n"),
	})

	require.NoError(t, err)
	require.Equal(t, "got:hello", string(result.Body))
}

func TestRunReportsNonZeroExit(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\nexit 1\n")

	_, err := Run(Request{
		Interpreter: "/bin/sh",
		ScriptPath:  script,
		Method:      "GET",
	})

	require.Error(t, err)
}
