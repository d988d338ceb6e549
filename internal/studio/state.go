package studio

import "fmt"

// Phase is the coordinator's single busy state. Anything other than
// PhaseIdle means busy.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseGenerating
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseGenerating:
		return "generating"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Button labels.
const (
	LabelGenerate   = "Generate"
	LabelGenerating = "Generating..."
	LabelLoad       = "Load"
	LabelLoading    = "Loading..."
)

// Controls is the enabled/label state of the UI controls that follow the
// busy flag.
type Controls struct {
	TabsEnabled     bool   `json:"tabs_enabled"`
	GenerateEnabled bool   `json:"generate_enabled"`
	GenerateLabel   string `json:"generate_label"`
	LoadEnabled     bool   `json:"load_enabled"`
	LoadLabel       string `json:"load_label"`
}

// State is a snapshot of the coordinator.
type State struct {
	Phase       Phase    `json:"phase"`
	Busy        bool     `json:"busy"`
	ModelID     string   `json:"model_id"`
	ModelLoaded bool     `json:"model_loaded"`
	Controls    Controls `json:"controls"`
}

func newState(phase Phase, modelID string, loaded bool) State {
	c := Controls{
		TabsEnabled:     phase != PhaseGenerating,
		GenerateEnabled: phase == PhaseIdle && loaded,
		GenerateLabel:   LabelGenerate,
		LoadEnabled:     phase == PhaseIdle,
		LoadLabel:       LabelLoad,
	}
	switch phase {
	case PhaseGenerating:
		c.GenerateLabel = LabelGenerating
	case PhaseLoading:
		c.LoadLabel = LabelLoading
	}
	return State{
		Phase:       phase,
		Busy:        phase != PhaseIdle,
		ModelID:     modelID,
		ModelLoaded: loaded,
		Controls:    c,
	}
}
