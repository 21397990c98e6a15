package toolchain

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgbuilder/internal/process"
)

// PackageAssemble merges the linked base package with the bytecode artifact into
// the final unsigned package. The result is written to a temporary file next to
// FinalPackage and renamed into place, so a previous package is replaced whole.
type PackageAssemble struct {
	FinalPackage string
	BasePackage  string
	BytecodeDir  string
	// Optional native libraries (lib/<abi>/*.so) and extra assets.
	JNILibsDir string
	AssetsDir  string
}

func (s *PackageAssemble) Name() string { return "PackageAssemble" }

func (s *PackageAssemble) Execute(ctx context.Context, sink process.Sink) Result {
	dex := filepath.Join(s.BytecodeDir, DexFileName)
	if !exists(dex) {
		return failed(s.Name(), sink, errors.FileSystemError(fmt.Sprintf("%s not found in %s", DexFileName, s.BytecodeDir)).Build())
	}
	if !exists(s.BasePackage) {
		return failed(s.Name(), sink, missing("base package", s.BasePackage))
	}
	if err := ctx.Err(); err != nil {
		return failed(s.Name(), sink, errors.CanceledError("package assembly canceled").WithCause(err).Build())
	}
	if err := ensureDir(filepath.Dir(s.FinalPackage)); err != nil {
		return failed(s.Name(), sink, err)
	}

	entries, err := s.assemble(dex)
	if err != nil {
		return failed(s.Name(), sink, errors.WrapError(err, errors.CategoryBuild, "package assembly failed").
			WithContext("path", s.FinalPackage).Build())
	}
	msg := fmt.Sprintf("Assembled %s (%d entries)", s.FinalPackage, entries)
	emit(sink, msg)
	return succeeded(s.Name(), msg)
}

func (s *PackageAssemble) assemble(dex string) (entries int, err error) {
	tmp, err := os.CreateTemp(filepath.Dir(s.FinalPackage), ".assemble-*.apk")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	zw := zip.NewWriter(tmp)
	if entries, err = s.copyBase(zw); err != nil {
		return 0, err
	}
	if err = addFile(zw, DexFileName, dex); err != nil {
		return 0, err
	}
	entries++
	trees := []struct{ prefix, dir string }{{"lib", s.JNILibsDir}, {"assets", s.AssetsDir}}
	for _, tree := range trees {
		n, addErr := addTree(zw, tree.prefix, tree.dir)
		if addErr != nil {
			return 0, addErr
		}
		entries += n
	}
	if err = zw.Close(); err != nil {
		return 0, err
	}
	if err = tmp.Close(); err != nil {
		return 0, err
	}
	if err = os.Rename(tmpName, s.FinalPackage); err != nil {
		return 0, err
	}
	return entries, nil
}

// copyBase copies base entries verbatim (no recompression), dropping any stale
// bytecode and, when native libraries are supplied, the base's lib/ tree.
func (s *PackageAssemble) copyBase(zw *zip.Writer) (int, error) {
	zr, err := zip.OpenReader(s.BasePackage)
	if err != nil {
		return 0, err
	}
	defer zr.Close()

	n := 0
	for _, f := range zr.File {
		if f.Name == DexFileName {
			continue
		}
		if s.JNILibsDir != "" && strings.HasPrefix(f.Name, "lib/") {
			continue
		}
		if err := zw.Copy(f); err != nil {
			return n, fmt.Errorf("copy %s: %w", f.Name, err)
		}
		n++
	}
	return n, nil
}

func addFile(zw *zip.Writer, name, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}

func addTree(zw *zip.Writer, prefix, root string) (int, error) {
	if root == "" || !isDir(root) {
		return 0, nil
	}
	n := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		n++
		return addFile(zw, prefix+"/"+filepath.ToSlash(rel), path)
	})
	return n, err
}
