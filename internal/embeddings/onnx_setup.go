//go:build cgo

package embeddings

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// onnxRuntimeVersion must track the onnxruntime_go dependency in go.mod.
const onnxRuntimeVersion = "1.23.0"

const onnxReleaseURL = "https://github.com/microsoft/onnxruntime/releases/download/v%s/onnxruntime-%s-%s.tgz"

// ErrUnsupportedPlatform indicates no ONNX runtime release exists for the
// current OS/arch.
var ErrUnsupportedPlatform = fmt.Errorf("unsupported platform")

// platformSlug returns the ONNX release archive slug for the platform.
func platformSlug(goos, goarch string) (string, error) {
	switch goos + "/" + goarch {
	case "linux/amd64":
		return "linux-x64", nil
	case "linux/arm64":
		return "linux-aarch64", nil
	case "darwin/amd64":
		return "osx-x86_64", nil
	case "darwin/arm64":
		return "osx-arm64", nil
	default:
		return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, goarch)
	}
}

func sharedLibName(goos string) string {
	if goos == "darwin" {
		return "libonnxruntime.dylib"
	}
	return "libonnxruntime.so"
}

// onnxInstallDir is where axond keeps its managed copy of the runtime.
func onnxInstallDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "axond", "lib")
}

// onnxLibraryPath locates the runtime library. The ONNX_PATH environment
// variable wins over the managed install directory; fastembed reads the same
// variable. Empty means not installed.
func onnxLibraryPath() string {
	if p := os.Getenv("ONNX_PATH"); p != "" {
		return p
	}

	managed := filepath.Join(onnxInstallDir(), sharedLibName(runtime.GOOS))
	if _, err := os.Stat(managed); err == nil {
		return managed
	}
	return ""
}

// ensureONNXRuntime returns the path to the runtime library, downloading the
// platform release into the managed directory on first use.
func ensureONNXRuntime(ctx context.Context) (string, error) {
	if p := onnxLibraryPath(); p != "" {
		return p, nil
	}

	if err := downloadONNXRuntime(ctx, onnxInstallDir()); err != nil {
		return "", fmt.Errorf("downloading ONNX runtime: %w (install manually and set ONNX_PATH)", err)
	}

	p := onnxLibraryPath()
	if p == "" {
		return "", fmt.Errorf("ONNX runtime downloaded but %s not found in %s", sharedLibName(runtime.GOOS), onnxInstallDir())
	}
	return p, nil
}

func downloadONNXRuntime(ctx context.Context, destDir string) error {
	slug, err := platformSlug(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(destDir, 0700); err != nil {
		return fmt.Errorf("creating %s: %w", destDir, err)
	}

	url := fmt.Sprintf(onnxReleaseURL, onnxRuntimeVersion, slug, onnxRuntimeVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	return untarRuntimeLibs(resp.Body, destDir, slug)
}

// untarRuntimeLibs extracts everything under the archive's lib/ directory
// into destDir. The release ships the shared library alongside versioned
// symlinks; all of them are kept so the dynamic linker resolves either name.
func untarRuntimeLibs(r io.Reader, destDir, slug string) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer gzr.Close()

	libPrefix := fmt.Sprintf("onnxruntime-%s-%s/lib/", slug, onnxRuntimeVersion)
	wantLib := sharedLibName(runtime.GOOS)
	found := false

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}

		name := strings.TrimPrefix(header.Name, "./")
		if !strings.HasPrefix(name, libPrefix) || header.Typeflag == tar.TypeDir {
			continue
		}

		base := filepath.Base(name)
		dest := filepath.Join(destDir, base)

		if header.Typeflag == tar.TypeSymlink {
			os.Remove(dest)
			if err := os.Symlink(header.Linkname, dest); err != nil {
				continue
			}
			if base == wantLib {
				found = true
			}
			continue
		}

		out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("creating %s: %w", base, err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return fmt.Errorf("writing %s: %w", base, err)
		}
		out.Close()

		if base == wantLib || strings.HasPrefix(base, wantLib+".") {
			found = true
		}
	}

	if !found {
		return fmt.Errorf("%s not present in archive", wantLib)
	}
	return nil
}
