package quotes

import (
	"encoding/json"
	"fmt"
)

// Label kinds for specialized quote items.
const (
	LabelKindSticker    = "sticker"
	LabelKindLaser      = "laser"
	LabelKindAutomotive = "automotive"
)

// LabelData is the discriminated payload attached to specialized quote
// items. Kind selects which variant block must be present; the others
// must be absent.
type LabelData struct {
	Kind       string           `json:"kind"`
	Sticker    *StickerLabel    `json:"sticker,omitempty"`
	Laser      *LaserLabel      `json:"laser,omitempty"`
	Automotive *AutomotiveLabel `json:"automotive,omitempty"`
}

type StickerLabel struct {
	Material  string `json:"material"`
	CutType   string `json:"cut_type"`
	Laminated bool   `json:"laminated"`
}

type LaserLabel struct {
	Material    string  `json:"material"`
	ThicknessMm float64 `json:"thickness_mm"`
	EngraveOnly bool    `json:"engrave_only"`
}

type AutomotiveLabel struct {
	VehicleModel string `json:"vehicle_model"`
	PlateNumber  string `json:"plate_number"`
	Coverage     string `json:"coverage"`
}

// ParseLabelData unmarshals and validates a label payload.
func ParseLabelData(raw string) (*LabelData, error) {
	var l LabelData
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		return nil, fmt.Errorf("invalid label data: %w", err)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

// Validate checks that exactly the variant named by Kind is populated.
func (l *LabelData) Validate() error {
	var want string
	present := 0
	if l.Sticker != nil {
		present++
		want = LabelKindSticker
	}
	if l.Laser != nil {
		present++
		want = LabelKindLaser
	}
	if l.Automotive != nil {
		present++
		want = LabelKindAutomotive
	}

	switch l.Kind {
	case LabelKindSticker, LabelKindLaser, LabelKindAutomotive:
	default:
		return fmt.Errorf("unknown label kind %q", l.Kind)
	}

	if present != 1 || want != l.Kind {
		return fmt.Errorf("label kind %q requires exactly its own payload block", l.Kind)
	}

	if l.Automotive != nil {
		switch l.Automotive.Coverage {
		case "full", "partial":
		default:
			return fmt.Errorf("automotive coverage must be full or partial, got %q", l.Automotive.Coverage)
		}
	}
	return nil
}
