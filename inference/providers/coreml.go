package providers

const (
	// CoreMLProviderBackend uses Apple CoreML for macOS/iOS acceleration.
	CoreMLProviderBackend ProviderBackend = "coreml"
)

// CoreML flag bits, see coreml_provider_factory.h.
const (
	coreMLFlagUseCPUOnly                 uint32 = 0x001
	coreMLFlagEnableOnSubgraph           uint32 = 0x002
	coreMLFlagOnlyEnableDeviceWithANE    uint32 = 0x004
	coreMLFlagOnlyAllowStaticInputShapes uint32 = 0x008
	coreMLFlagCreateMLProgram            uint32 = 0x010
)

// CoreMLOptions contains arguments for the CoreML provider.
// See: https://onnxruntime.ai/docs/execution-providers/CoreML-ExecutionProvider.html
type CoreMLOptions struct {
	// Limit CoreML to running on CPU only.
	CPUOnly bool `json:"cpu_only" yaml:"cpu_only" koanf:"cpuonly"`
	// Enable CoreML EP to run on a subgraph in the body of a control flow operator.
	EnableOnSubgraphs bool `json:"enable_on_subgraphs" yaml:"enable_on_subgraphs" koanf:"enableonsubgraphs"`
	// Only enable CoreML EP for Apple devices with a compatible Apple Neural Engine.
	RequireANE bool `json:"require_ane" yaml:"require_ane" koanf:"requireane"`
	// Only allow the CoreML EP to take nodes with inputs that have static shapes.
	RequireStaticInputShapes bool `json:"require_static_input_shapes" yaml:"require_static_input_shapes" koanf:"requirestaticinputshapes"`
	// Create an MLProgram format model. Requires Core ML 5 or later (iOS 15+ or macOS 12+).
	MLProgram bool `json:"ml_program" yaml:"ml_program" koanf:"mlprogram"`
}

// Flags packs the options into the CoreML provider flag word.
func (o CoreMLOptions) Flags() uint32 {
	var flags uint32
	for _, f := range []struct {
		on  bool
		bit uint32
	}{
		{o.CPUOnly, coreMLFlagUseCPUOnly},
		{o.EnableOnSubgraphs, coreMLFlagEnableOnSubgraph},
		{o.RequireANE, coreMLFlagOnlyEnableDeviceWithANE},
		{o.RequireStaticInputShapes, coreMLFlagOnlyAllowStaticInputShapes},
		{o.MLProgram, coreMLFlagCreateMLProgram},
	} {
		if f.on {
			flags |= f.bit
		}
	}
	return flags
}
