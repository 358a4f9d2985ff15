package actions

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteOutputs_SingleLine(t *testing.T) {
	var buf bytes.Buffer
	err := WriteOutputs(&buf, map[string]string{
		"latest_tag":   "1.0.0",
		"has_new_tags": "true",
	})
	require.NoError(t, err)
	assert.Equal(t, "has_new_tags=true\nlatest_tag=1.0.0\n", buf.String())
}

func TestWriteOutputs_MultiLineUsesHeredoc(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteOutputs(&buf, map[string]string{"synced_tags": "0.1.0\n0.2.0"}))

	re := regexp.MustCompile(`^synced_tags<<(EOF_[0-9a-f]+)\n0\.1\.0\n0\.2\.0\n(EOF_[0-9a-f]+)\n$`)
	m := re.FindStringSubmatch(buf.String())
	require.NotNil(t, m, "unexpected output: %q", buf.String())
	assert.Equal(t, m[1], m[2])
}

func TestWriteOutputs_InvalidName(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteOutputs(&buf, map[string]string{"a=b": "x"}))
	assert.Error(t, WriteOutputs(&buf, map[string]string{"": "x"}))
}

func TestEmit_AppendsToOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.WriteFile(path, []byte("existing=1\n"), 0644))
	t.Setenv(OutputEnv, path)

	var fallback bytes.Buffer
	require.NoError(t, Emit(&fallback, map[string]string{"has_new_tags": "false"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "existing=1\nhas_new_tags=false\n", string(data))
	assert.Zero(t, fallback.Len())
}

func TestEmit_FallbackWriter(t *testing.T) {
	t.Setenv(OutputEnv, "")
	var fallback bytes.Buffer
	require.NoError(t, Emit(&fallback, map[string]string{"latest_tag": "2.3.4"}))
	assert.True(t, strings.HasPrefix(fallback.String(), "latest_tag=2.3.4"))
}
