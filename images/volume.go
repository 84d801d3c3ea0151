package images

import (
	"image"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// ErrInvalidVolume is returned for volumes whose buffer does not match their dimensions.
var ErrInvalidVolume = errors.New("invalid volume")

// VolumeHeader describes the dimensions of a volume.
type VolumeHeader struct {
	// Dims holds width, height and depth.
	Dims [3]int
}

// VolumeReader reads a stacked volume from an encoded buffer.
type VolumeReader interface {
	ReadHeader(data []byte) (VolumeHeader, error)
	ReadVolume(header VolumeHeader, data []byte) ([]float32, error)
}

// Volume is a stack of Depth slices of Width x Height voxels.
//
// Voxel (x, y, z) is stored at z*Width*Height + y*Width + x.
type Volume struct {
	Width, Height, Depth int
	Data                 []float32
}

// NewVolume validates and wraps a voxel buffer.
//
// Arguments:
//   - width, height, depth: The volume dimensions.
//   - data: The voxel buffer of size width*height*depth.
//
// Returns:
//   - *Volume: The volume.
//   - error: ErrInvalidVolume if a dimension is not positive or the buffer size differs.
func NewVolume(width, height, depth int, data []float32) (*Volume, error) {
	if width <= 0 || height <= 0 || depth <= 0 {
		return nil, errors.Wrapf(ErrInvalidVolume, "dims %dx%dx%d", width, height, depth)
	}
	if len(data) != width*height*depth {
		return nil, errors.Wrapf(ErrInvalidVolume,
			"buffer holds %d voxels, dims %dx%dx%d need %d", len(data), width, height, depth, width*height*depth)
	}
	return &Volume{Width: width, Height: height, Depth: depth, Data: data}, nil
}

// ReadVolume reads a volume through r.
func ReadVolume(r VolumeReader, data []byte) (*Volume, error) {
	header, err := r.ReadHeader(data)
	if err != nil {
		return nil, errors.Wrap(err, "read volume header")
	}
	voxels, err := r.ReadVolume(header, data)
	if err != nil {
		return nil, errors.Wrap(err, "read volume")
	}
	return NewVolume(header.Dims[0], header.Dims[1], header.Dims[2], voxels)
}

// Slice returns a normalized copy of slice z.
//
// Every voxel is divided by the slice maximum. A slice whose maximum is 0 is
// divided by 1, so an all-zero slice stays all-zero. Non-finite voxels
// (NaN and ±Inf) read as 0.
//
// Arguments:
//   - z: The slice index in [0, Depth).
//
// Returns:
//   - []float32: Width*Height normalized voxels.
func (v *Volume) Slice(z int) []float32 {
	n := v.Width * v.Height
	out := make([]float32, n)
	copy(out, v.Data[z*n:(z+1)*n])

	peak := float32(0)
	for i, val := range out {
		if math32.IsNaN(val) || math32.IsInf(val, 0) {
			out[i] = 0
			val = 0
		}
		if i == 0 || val > peak {
			peak = val
		}
	}
	if peak == 0 {
		peak = 1
	}
	for i := range out {
		out[i] /= peak
	}
	return out
}

// SliceImage renders normalized slice z as an 8-bit grayscale image.
func (v *Volume) SliceImage(z int) *image.Gray {
	s := v.Slice(z)
	img := image.NewGray(image.Rect(0, 0, v.Width, v.Height))
	for i, val := range s {
		img.Pix[i] = toByte(val * 255)
	}
	return img
}

// Composite packs slices z-1, z and z+1 into the red, green and blue channels
// of a pseudo-colour image, giving the detector adjacent-slice context.
//
// Arguments:
//   - z: The centre slice, in [1, Depth-2].
//
// Returns:
//   - *image.NRGBA: The composite.
//   - error: ErrInvalidVolume if z has no neighbour on either side.
func (v *Volume) Composite(z int) (*image.NRGBA, error) {
	if z < 1 || z > v.Depth-2 {
		return nil, errors.Wrapf(ErrInvalidVolume, "slice %d has no neighbours in depth %d", z, v.Depth)
	}
	r, g, b := v.Slice(z-1), v.Slice(z), v.Slice(z+1)
	img := image.NewNRGBA(image.Rect(0, 0, v.Width, v.Height))
	for i := range g {
		px := img.Pix[i*4 : i*4+4 : i*4+4]
		px[0] = toByte(r[i] * 255)
		px[1] = toByte(g[i] * 255)
		px[2] = toByte(b[i] * 255)
		px[3] = 255
	}
	return img, nil
}
