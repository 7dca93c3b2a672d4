package sensor

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/GabrielNunesIT/motion-relay/internal/model"
)

// GPIOReader reads a sysfs style GPIO value file, where "1" is High.
type GPIOReader struct {
	path string
}

// NewGPIOReader creates a reader for the value file at path.
func NewGPIOReader(path string) *GPIOReader {
	return &GPIOReader{path: path}
}

// Open checks that the value file is readable.
func (g *GPIOReader) Open() error {
	_, err := g.Read()
	return err
}

// Read returns the pin level.
func (g *GPIOReader) Read() (model.Level, error) {
	data, err := os.ReadFile(g.path)
	if err != nil {
		return model.Low, err
	}

	switch v := strings.TrimSpace(string(data)); v {
	case "1":
		return model.High, nil
	case "0":
		return model.Low, nil
	default:
		return model.Low, fmt.Errorf("unexpected gpio value %q in %s", v, g.path)
	}
}

// Close is a no-op; the file is reopened on every read.
func (g *GPIOReader) Close() error {
	return nil
}

// ScriptedReader replays a fixed sequence of levels, then keeps returning
// the last one.
type ScriptedReader struct {
	mu     sync.Mutex
	levels []model.Level
	next   int
}

// NewScriptedReader creates a reader replaying levels.
func NewScriptedReader(levels ...model.Level) *ScriptedReader {
	return &ScriptedReader{levels: levels}
}

func (s *ScriptedReader) Open() error  { return nil }
func (s *ScriptedReader) Close() error { return nil }

// Read returns the next scripted level.
func (s *ScriptedReader) Read() (model.Level, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.levels) == 0 {
		return model.Low, nil
	}
	i := min(s.next, len(s.levels)-1)
	s.next++
	return s.levels[i], nil
}
