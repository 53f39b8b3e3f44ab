package acoustic

import (
	"fmt"
	"strconv"
	"strings"
)

// ModelType is the acoustic feature a stream models.
type ModelType int

const (
	ModelUnknown ModelType = iota
	ModelDuration
	ModelSpectrum
	ModelPitch
	ModelAperiodicity
)

var modelTypeNames = map[ModelType]string{
	ModelDuration:     "dur",
	ModelSpectrum:     "mgc",
	ModelPitch:        "lf0",
	ModelAperiodicity: "bap",
}

// ParseModelType maps a macro-name field to its model type.
func ParseModelType(s string) ModelType {
	for t, name := range modelTypeNames {
		if name == s {
			return t
		}
	}
	return ModelUnknown
}

func (t ModelType) String() string {
	if name, ok := modelTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MacroName is the decoded form of a leaf or stream macro name:
// <phone>_s<state>_<type>_<stream>_<serial>.
type MacroName struct {
	Phone  string
	State  int
	Type   ModelType
	Stream int
	Serial int
}

// ParseMacroName decodes name. The phone may itself contain underscores, so
// fields are taken from the right. ok is false when name does not follow the
// grammar.
func ParseMacroName(name string) (m MacroName, ok bool) {
	parts := strings.Split(name, "_")
	if len(parts) < 5 {
		return MacroName{}, false
	}
	n := len(parts)
	serial, err := strconv.Atoi(parts[n-1])
	if err != nil {
		return MacroName{}, false
	}
	stream, err := strconv.Atoi(parts[n-2])
	if err != nil || stream < 1 {
		return MacroName{}, false
	}
	typ := ParseModelType(parts[n-3])
	if typ == ModelUnknown {
		return MacroName{}, false
	}
	st := parts[n-4]
	if !strings.HasPrefix(st, "s") {
		return MacroName{}, false
	}
	state, err := strconv.Atoi(st[1:])
	if err != nil {
		return MacroName{}, false
	}
	phone := strings.Join(parts[:n-4], "_")
	if phone == "" {
		return MacroName{}, false
	}
	return MacroName{Phone: phone, State: state, Type: typ, Stream: stream, Serial: serial}, true
}

func (m MacroName) String() string {
	return fmt.Sprintf("%s_s%d_%s_%d_%d", m.Phone, m.State, m.Type, m.Stream, m.Serial)
}
