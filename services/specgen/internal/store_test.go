package internal

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forge-ai/testgen/shared/apierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "up"), filepath.Join(dir, "gen"))
	require.NoError(t, err)
	return s, dir
}

func TestSecureFilename(t *testing.T) {
	cases := map[string]string{
		"petstore.yaml":       "petstore.yaml",
		"My Spec v2.json":     "My_Spec_v2.json",
		"../../etc/passwd":    "etc_passwd",
		`C:\Users\me\api.yml`: "C_Users_me_api.yml",
		".hidden.yaml":        "hidden.yaml",
		"ünïcödé.yaml":        "ncd.yaml",
		"Pet Store":           "Pet_Store",
		"  spaced   out  ":    "spaced_out",
		"...":                 "",
		"a<b>c|d.json":        "abcd.json",
	}
	for in, want := range cases {
		assert.Equal(t, want, secureFilename(in), in)
	}
}

func TestTestsFilename(t *testing.T) {
	assert.Equal(t, "Pet_Store_Tests.java", TestsFilename("Pet Store"))
	assert.Equal(t, "API_Tests.java", TestsFilename(""))
	assert.Equal(t, "API_Tests.java", TestsFilename("../"))
}

func TestStore_UploadLifecycle(t *testing.T) {
	s, dir := newStore(t)

	path, err := s.SaveUpload("../evil name.yaml", strings.NewReader("openapi: 3.0.0"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "up"), filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, "_evil_name.yaml"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "openapi: 3.0.0", string(raw))

	require.NoError(t, s.RemoveUpload(path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, s.RemoveUpload(path), "removing twice is fine")
}

func TestStore_SaveAndOpenTests(t *testing.T) {
	s, _ := newStore(t)

	name, err := s.SaveTests("Pet Store", "first")
	require.NoError(t, err)
	assert.Equal(t, "Pet_Store_Tests.java", name)

	_, err = s.SaveTests("Pet Store", "second")
	require.NoError(t, err)

	f, info, err := s.Open(name)
	require.NoError(t, err)
	defer f.Close()
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
	assert.Equal(t, int64(len("second")), info.Size())

	entries, err := os.ReadDir(s.generated)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestStore_OpenRejects(t *testing.T) {
	s, dir := newStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("x"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(s.generated, "sub"), 0o755))

	for _, name := range []string{"", "../secret.txt", "sub", ".tmp-1", "a/b", `a\b`, "missing.java"} {
		_, _, err := s.Open(name)
		require.Error(t, err, name)
		assert.True(t, apierr.Is(err, apierr.NotFound), name)
	}
}
