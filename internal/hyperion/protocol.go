package hyperion

import "errors"

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidRequest = errors.New("invalid request")
)

// Request is one line of the Hyperion JSON remote protocol. Priority and
// color components are kept undecoded since clients send both numbers and
// numeric strings.
type Request struct {
	Command  string         `json:"command"`
	Priority any            `json:"priority,omitempty"`
	Color    []any          `json:"color,omitempty"`
	Effect   *EffectRequest `json:"effect,omitempty"`
}

type EffectRequest struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type Reply struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Info    *ServerInfo `json:"info,omitempty"`
}

type ServerInfo struct {
	Effects    []EffectInfo   `json:"effects"`
	Priorities []PriorityInfo `json:"priorities"`
	Transform  Transform      `json:"transform"`
}

type EffectInfo struct {
	Name   string         `json:"name"`
	Script string         `json:"script"`
	Args   map[string]any `json:"args"`
}

type PriorityInfo struct {
	Priority int `json:"priority"`
}

// Transform is reported to clients but never applied: colors are only scaled
// linearly from 0-255 to 0-1.
type Transform struct {
	ID             string     `json:"id"`
	ValueGain      float64    `json:"valueGain"`
	SaturationGain float64    `json:"saturationGain"`
	Gamma          [3]float64 `json:"gamma"`
	Threshold      [3]float64 `json:"threshold"`
	WhiteLevel     [3]float64 `json:"whitelevel"`
	BlackLevel     [3]float64 `json:"blacklevel"`
}

var identityTransform = Transform{
	ID:             "default",
	ValueGain:      1,
	SaturationGain: 1,
	Gamma:          [3]float64{1, 1, 1},
	WhiteLevel:     [3]float64{1, 1, 1},
}

func failure(err error) Reply {
	return Reply{Success: false, Error: err.Error()}
}

var succeeded = Reply{Success: true}
