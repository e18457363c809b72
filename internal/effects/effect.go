// Package effects generates color sequences for the effect ticker. Effects do
// no I/O and hold no state other than their phase.
package effects

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/AlexisBRENON/hyperion2boblight/internal/lights"
)

var ErrUnknownEffect = errors.New("unknown effect")

// Effect produces a color for the current phase. Color must not change the
// phase; only Increment does.
type Effect interface {
	Color(light lights.Light) lights.RGB
	Increment()
}

// Definition describes an effect that remote clients can request.
type Definition struct {
	Name   string
	Script string
	New    func() Effect
}

var definitions = []Definition{
	{Name: "Rainbow", Script: "Rainbow.py", New: func() Effect { return NewRainbow() }},
	{Name: "Rainbow swirl", Script: "Rainbow swirl.py", New: func() Effect { return NewRainbowSwirl() }},
}

// Available lists the effects New can build.
func Available() []Definition {
	return append([]Definition(nil), definitions...)
}

// Lookup finds an effect by name or script name.
func Lookup(name string) (Definition, bool) {
	for _, d := range definitions {
		if strings.EqualFold(d.Name, name) || strings.EqualFold(d.Script, name) {
			return d, true
		}
	}
	return Definition{}, false
}

// New builds a fresh instance of the named effect, at phase zero.
func New(name string) (Effect, error) {
	d, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEffect, name)
	}
	return d.New(), nil
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
