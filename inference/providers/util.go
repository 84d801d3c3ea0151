package providers

import (
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// SharedLibEnv overrides the platform default onnxruntime library location.
const SharedLibEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// ErrRuntimeUnavailable is returned when the onnxruntime shared library cannot be loaded.
var ErrRuntimeUnavailable = errors.New("onnxruntime unavailable")

var (
	envOnce sync.Once
	envErr  error
)

// GetSharedLibPath returns the path to the shared library for the current platform.
//
// Returns:
//   - string: The path to the shared library.
//   - error: ErrRuntimeUnavailable when the platform has no known library.
func GetSharedLibPath() (string, error) {
	if p := os.Getenv(SharedLibEnv); p != "" {
		return p, nil
	}
	switch runtime.GOOS {
	case "windows":
		if runtime.GOARCH == "amd64" {
			return "./third_party/onnxruntime.dll", nil
		}
	case "darwin":
		return "./third_party/libonnxruntime.1.21.0.dylib", nil
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so", nil
		}
		return "./third_party/onnxruntime.so", nil
	}
	return "", errors.Wrapf(ErrRuntimeUnavailable, "no library for %s/%s", runtime.GOOS, runtime.GOARCH)
}

// InitializeEnvironment loads the onnxruntime shared library once per process.
//
// Arguments:
//   - libPath: The library path. Empty uses GetSharedLibPath.
//
// Returns:
//   - error: The result of the first initialization, returned to every caller.
func InitializeEnvironment(libPath string) error {
	envOnce.Do(func() {
		if libPath == "" {
			libPath, envErr = GetSharedLibPath()
			if envErr != nil {
				return
			}
		}
		if _, err := os.Stat(libPath); err != nil {
			envErr = errors.Wrapf(ErrRuntimeUnavailable, "library not found at %s: %v", libPath, err)
			return
		}
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = errors.Wrap(err, "error initializing ORT environment")
		}
	})
	return envErr
}
