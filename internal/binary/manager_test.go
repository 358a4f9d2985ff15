package binary

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// publishFixture builds a signed archive with a checksum and serves the
// three files from a test server.
func publishFixture(t *testing.T, dir string) (*httptest.Server, string) {
	t.Helper()

	privPath, pubPath := writeTestKeys(t, dir, "fixture")

	uv := writeFile(t, filepath.Join(dir, "build", "uv"), "uv")
	uvx := writeFile(t, filepath.Join(dir, "build", "uvx"), "uvx")

	archive := filepath.Join(dir, "dist", "uv-x86_64-unknown-linux-gnu.tar.gz")
	if err := NewArchiver().Create(archive, FormatTarGz, []Entry{
		{Name: "uv-x86_64-unknown-linux-gnu/uv", Source: uv},
		{Name: "uv-x86_64-unknown-linux-gnu/uvx", Source: uvx},
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := WriteChecksumFile(archive); err != nil {
		t.Fatalf("WriteChecksumFile: %v", err)
	}
	signer, err := NewSignerFromFile(privPath, nil)
	if err != nil {
		t.Fatalf("NewSignerFromFile: %v", err)
	}
	if _, err := signer.SignFile(archive); err != nil {
		t.Fatalf("SignFile: %v", err)
	}

	server := httptest.NewServer(http.FileServer(http.Dir(filepath.Join(dir, "dist"))))
	t.Cleanup(server.Close)
	return server, pubPath
}

func fixtureRequest(serverURL string, expect ...string) FetchRequest {
	name := "uv-x86_64-unknown-linux-gnu.tar.gz"
	return FetchRequest{
		Tag:         "1.0.0",
		Archive:     RemoteFile{Name: name, URL: serverURL + "/" + name},
		Checksum:    RemoteFile{Name: name + ChecksumSuffix, URL: serverURL + "/" + name + ChecksumSuffix},
		Signature:   RemoteFile{Name: name + SignatureSuffix, URL: serverURL + "/" + name + SignatureSuffix},
		ExpectFiles: expect,
	}
}

func TestManagerFetchAndVerify(t *testing.T) {
	tmpDir := t.TempDir()
	server, pubPath := publishFixture(t, filepath.Join(tmpDir, "publish"))

	mgr, err := NewManager(Config{CacheDir: filepath.Join(tmpDir, "cache"), KeyringPath: pubPath})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	result, err := mgr.FetchAndVerify(context.Background(), fixtureRequest(server.URL,
		"uv-x86_64-unknown-linux-gnu/uv",
		"uv-x86_64-unknown-linux-gnu/uvx",
	))
	if err != nil {
		t.Fatalf("FetchAndVerify: %v", err)
	}

	if result.Verified != VerificationGPG {
		t.Errorf("Verified = %s, want GPG", result.Verified)
	}
	if len(result.Files) != 2 {
		t.Errorf("Files = %v", result.Files)
	}
	if !strings.HasPrefix(result.Path, filepath.Join(tmpDir, "cache", "1.0.0")) {
		t.Errorf("Path = %s, want under cache/1.0.0", result.Path)
	}
}

func TestManagerFetchAndVerifyChecksumOnly(t *testing.T) {
	tmpDir := t.TempDir()
	server, _ := publishFixture(t, filepath.Join(tmpDir, "publish"))

	mgr, err := NewManager(Config{CacheDir: filepath.Join(tmpDir, "cache")})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	result, err := mgr.FetchAndVerify(context.Background(), fixtureRequest(server.URL))
	if err != nil {
		t.Fatalf("FetchAndVerify: %v", err)
	}
	if result.Verified != VerificationSHA256 {
		t.Errorf("Verified = %s, want SHA256", result.Verified)
	}
}

func TestManagerFetchAndVerifyMissingFile(t *testing.T) {
	tmpDir := t.TempDir()
	server, pubPath := publishFixture(t, filepath.Join(tmpDir, "publish"))

	mgr, err := NewManager(Config{CacheDir: filepath.Join(tmpDir, "cache"), KeyringPath: pubPath})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	_, err = mgr.FetchAndVerify(context.Background(), fixtureRequest(server.URL, "uv-x86_64-unknown-linux-gnu/uv.exe"))
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("expected missing file error, got %v", err)
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(Config{}); err == nil {
		t.Error("expected error for empty CacheDir")
	}
	if _, err := NewManager(Config{CacheDir: t.TempDir(), KeyringPath: "/nonexistent/key.pub"}); err == nil {
		t.Error("expected error for missing keyring")
	}
}

func TestManagerInstall(t *testing.T) {
	tmpDir := t.TempDir()
	server, pubPath := publishFixture(t, filepath.Join(tmpDir, "publish"))

	mgr, err := NewManager(Config{CacheDir: filepath.Join(tmpDir, "cache"), KeyringPath: pubPath})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	result, err := mgr.FetchAndVerify(context.Background(), fixtureRequest(server.URL))
	if err != nil {
		t.Fatalf("FetchAndVerify: %v", err)
	}

	dest := filepath.Join(tmpDir, "bin")
	paths, err := mgr.Install(result.Path, []string{"uv-x86_64-unknown-linux-gnu/uv", "uv-x86_64-unknown-linux-gnu/uvx"}, dest)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if len(paths) != 2 || paths[0] != filepath.Join(dest, "uv") || paths[1] != filepath.Join(dest, "uvx") {
		t.Fatalf("paths = %v", paths)
	}
	info, err := os.Stat(paths[1])
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm()&0100 == 0 {
		t.Errorf("mode = %v, want executable", info.Mode())
	}

	if _, err := mgr.Install(result.Path, []string{"uv-x86_64-unknown-linux-gnu/missing"}, dest); err == nil {
		t.Error("expected error for a member not in the archive")
	}
}
