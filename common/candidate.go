package common

// Candidate is a raw detection proposal in model-input space.
//
// Candidates are produced by the decoder and consumed by suppression and the
// coordinate mapper. XC, YC, W and H are measured in model-input pixels.
type Candidate struct {
	XC, YC, W, H float32
	Confidence   float32
	ClassID      int
}

// Bounds returns the corner form of the candidate in model-input space.
func (c Candidate) Bounds() BoundingBox {
	return BoundingBox{
		ClassID:    c.ClassID,
		Confidence: c.Confidence,
		X1:         c.XC - c.W/2,
		Y1:         c.YC - c.H/2,
		X2:         c.XC + c.W/2,
		Y2:         c.YC + c.H/2,
	}
}
