// Package util - Loading of image sequences from disk.
package util

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-cascade/images"
)

// SlicePrefix is the file name prefix of volume slice images, e.g. slice-12.png.
const SlicePrefix = "slice-"

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
	// Frame is the sequence number parsed from the file name.
	Frame int
}

// LoadDirectoryImageFiles reads all image files named <prefix><N>.<ext> from a directory.
//
// Arguments:
//   - dir: Directory path containing image files.
//   - prefix: The file name prefix preceding the sequence number.
//
// Returns:
//   - []ImageFile: The files sorted by sequence number.
//   - error: Error if loading fails or a file name has no sequence number.
func LoadDirectoryImageFiles(dir, prefix string) ([]ImageFile, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []ImageFile
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), prefix) {
			continue
		}

		ext := filepath.Ext(file.Name())
		switch strings.ToLower(ext) {
		case ".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff", ".webp":
			imgPath := filepath.Join(dir, file.Name())
			frame, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(file.Name(), prefix), ext))
			if err != nil {
				return nil, errors.Wrapf(err, "parse sequence number of %s", imgPath)
			}
			data, err := os.ReadFile(imgPath)
			if err != nil {
				return nil, err
			}
			out = append(out, ImageFile{
				Path:  imgPath,
				Data:  data,
				Frame: frame,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Frame < out[j].Frame
	})

	return out, nil
}

// LoadSliceDirectory stacks the slice-N images of dir into a volume.
//
// Slices are ordered by N. Each pixel contributes its 16-bit luminance; every
// slice must have the same dimensions.
//
// Arguments:
//   - dir: Directory path containing slice images.
//
// Returns:
//   - *images.Volume: The volume, depth equal to the number of slices.
//   - error: An error if no slice is found, a slice cannot be decoded or the sizes differ.
func LoadSliceDirectory(dir string) (*images.Volume, error) {
	files, err := LoadDirectoryImageFiles(dir, SlicePrefix)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Wrapf(images.ErrInvalidVolume, "no %s* images in %s", SlicePrefix, dir)
	}

	var (
		width, height int
		data          []float32
	)
	for i, f := range files {
		img, err := images.Decode(f.Data)
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s", f.Path)
		}
		b := img.Bounds()
		if i == 0 {
			width, height = b.Dx(), b.Dy()
			data = make([]float32, 0, width*height*len(files))
		} else if b.Dx() != width || b.Dy() != height {
			return nil, errors.Wrapf(images.ErrInvalidVolume,
				"%s is %dx%d, expected %dx%d", f.Path, b.Dx(), b.Dy(), width, height)
		}
		data = appendLuminance(data, img)
	}
	return images.NewVolume(width, height, len(files), data)
}

func appendLuminance(dst []float32, img image.Image) []float32 {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16)
			dst = append(dst, float32(g.Y))
		}
	}
	return dst
}
