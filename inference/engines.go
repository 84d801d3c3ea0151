package inference

// EngineType is the type of the engine.
type EngineType string

const (
	// EngineONNX is the ONNX engine that uses the onnxruntime library.
	EngineONNX EngineType = "onnx"
	// EngineOpenCV is the OpenCV DNN engine that uses the gocv library.
	EngineOpenCV EngineType = "opencv"
)

// Engines is a list of all supported engines.
var Engines = []EngineType{EngineONNX, EngineOpenCV}

// Valid reports whether t is a supported engine.
func (t EngineType) Valid() bool {
	for _, e := range Engines {
		if e == t {
			return true
		}
	}
	return false
}
