package priority

import (
	"fmt"
	"math"

	"github.com/AlexisBRENON/hyperion2boblight/internal/lights"
)

// Command is the payload stored at a priority. It is one of Color, Effect or
// Shutdown.
type Command interface {
	isCommand()
	fmt.Stringer
}

type Color lights.Color

type Effect struct {
	Name string
}

// Shutdown asks the output driver to turn the lights off and terminate.
type Shutdown struct{}

func (Color) isCommand()    {}
func (Effect) isCommand()   {}
func (Shutdown) isCommand() {}

func (c Color) String() string {
	return fmt.Sprintf("color(%g,%g,%g)", c.Red, c.Green, c.Blue)
}

func (c Color) hasNaN() bool {
	return math.IsNaN(c.Red) || math.IsNaN(c.Green) || math.IsNaN(c.Blue)
}

func (e Effect) String() string {
	return fmt.Sprintf("effect(%s)", e.Name)
}

func (Shutdown) String() string {
	return "shutdown"
}

// Entry is a command stored at a priority. The zero Entry is None.
type Entry struct {
	Priority int
	Command  Command
}

// None is the active entry of an empty list.
var None = Entry{}

func (e Entry) IsNone() bool {
	return e.Command == nil
}

func (e Entry) String() string {
	if e.IsNone() {
		return "none"
	}
	return fmt.Sprintf("%d:%s", e.Priority, e.Command)
}
