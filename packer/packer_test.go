package packer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/willibrandon/bundlekit/writeengine"
)

type fakeInvoker struct {
	gotArgs []string
	err     error
}

func (f *fakeInvoker) Run(_ context.Context, _, _, _ string, args ...string) ([]byte, error) {
	f.gotArgs = args
	return nil, f.err
}

func TestPack_ProducesExpectedTarballPath(t *testing.T) {
	pkgDir := t.TempDir()
	outDir := t.TempDir()
	destDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(pkgDir, "package.json"), []byte(`{"name":"pkg","version":"1.0.0"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	invoker := &fakeInvoker{}
	p := New(writeengine.New(), invoker, "")

	path, err := p.Pack(context.Background(), writeengine.Plan{PackageDir: pkgDir, OutDir: outDir}, "pkg", "1.0.0", destDir)
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}

	want := filepath.Join(destDir, "pkg-1.0.0.tgz")
	if path != want {
		t.Errorf("Pack() = %q, want %q", path, want)
	}
}

func TestSanitizeForTarball_ScopedPackage(t *testing.T) {
	got := sanitizeForTarball("@myorg/my-pkg")
	want := "myorg-my-pkg"
	if got != want {
		t.Errorf("sanitizeForTarball() = %q, want %q", got, want)
	}
}

func TestSanitizeForTarball_UnscopedPackage(t *testing.T) {
	if got := sanitizeForTarball("my-pkg"); got != "my-pkg" {
		t.Errorf("sanitizeForTarball() = %q, want unchanged", got)
	}
}
