package images

import (
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

// ParseColor parses a "#rrggbb" or "#rgb" hex string into an opaque colour.
//
// Arguments:
//   - hex: The colour string.
//
// Returns:
//   - color.NRGBA: The parsed colour with full alpha.
//   - error: An error if the string is not a valid hex colour.
func ParseColor(hex string) (color.NRGBA, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.NRGBA{}, errors.Wrapf(err, "parse colour %q", hex)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}
