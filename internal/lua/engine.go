// Package lua runs the simulator's reading scripts. A script defines
// battery() and temperature() functions returning numbers; the engine sets
// the uptime global (seconds) before each call.
package lua

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/aarzilli/golua/lua"
	"github.com/sirupsen/logrus"
)

// LuaError describes a failed load or call.
type LuaError struct {
	Type    string // "syntax", "runtime", "api"
	Message string
	Line    int
	Source  string
}

func (e *LuaError) Error() string {
	var where []string
	if e.Source != "" {
		where = append(where, "in "+e.Source)
	}
	if e.Line > 0 {
		where = append(where, fmt.Sprintf("line %d", e.Line))
	}
	if len(where) == 0 {
		return fmt.Sprintf("Lua %s error: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("Lua %s error (%s): %s", e.Type, strings.Join(where, ", "), e.Message)
}

// Is matches errors of the same Type.
func (e *LuaError) Is(target error) bool {
	var other *LuaError
	if errors.As(target, &other) {
		return e.Type == other.Type
	}
	return false
}

// Engine wraps one Lua state. It is safe for concurrent use.
type Engine struct {
	mu     sync.Mutex
	state  *lua.State
	logger *logrus.Logger
	source string
}

func NewEngine(logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	e := &Engine{logger: logger, state: lua.NewState()}
	e.state.OpenLibs()
	e.capturePrint()
	return e
}

// capturePrint routes print() to the logger.
func (e *Engine) capturePrint() {
	e.state.PushGoFunction(func(L *lua.State) int {
		top := L.GetTop()
		parts := make([]string, 0, top)
		for i := 1; i <= top; i++ {
			switch {
			case L.IsNil(i):
				parts = append(parts, "nil")
			case L.IsBoolean(i):
				parts = append(parts, fmt.Sprintf("%t", L.ToBoolean(i)))
			case L.IsNumber(i):
				parts = append(parts, fmt.Sprintf("%v", L.ToNumber(i)))
			case L.IsString(i):
				parts = append(parts, L.ToString(i))
			default:
				L.GetGlobal("tostring")
				L.PushValue(i)
				L.Call(1, 1)
				parts = append(parts, L.ToString(-1))
				L.Pop(1)
			}
		}
		e.logger.WithField("script", e.source).Info(strings.Join(parts, "\t"))
		return 0
	})
	e.state.SetGlobal("print")
}

// LoadFile runs the script at path, defining its globals.
func (e *Engine) LoadFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read script %s: %w", path, err)
	}
	return e.Load(string(content), path)
}

// Load runs script once so its functions become callable.
func (e *Engine) Load(script, name string) error {
	if strings.TrimSpace(script) == "" {
		return &LuaError{Type: "api", Message: "empty script", Source: name}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return &LuaError{Type: "api", Message: "engine closed", Source: name}
	}

	e.source = name
	if status := e.state.LoadString(script); status != 0 {
		return e.popError("syntax", name)
	}
	if err := e.state.Call(0, 0); err != nil {
		return parseError("runtime", name, err.Error())
	}
	e.logger.WithField("script", name).Debug("Lua script loaded")
	return nil
}

// HasFunction reports whether a global function name is defined.
func (e *Engine) HasFunction(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return false
	}
	e.state.GetGlobal(name)
	defer e.state.Pop(1)
	return e.state.IsFunction(-1)
}

// CallNumber calls the global function fn with no arguments and returns its
// numeric result.
func (e *Engine) CallNumber(fn string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return 0, &LuaError{Type: "api", Message: "engine closed"}
	}

	e.state.GetGlobal(fn)
	if !e.state.IsFunction(-1) {
		e.state.Pop(1)
		return 0, &LuaError{Type: "api", Message: fmt.Sprintf("function %s not defined", fn), Source: e.source}
	}
	if err := e.state.Call(0, 1); err != nil {
		return 0, parseError("runtime", e.source, err.Error())
	}
	defer e.state.Pop(1)

	if !e.state.IsNumber(-1) {
		return 0, &LuaError{Type: "api", Message: fmt.Sprintf("%s() did not return a number", fn), Source: e.source}
	}
	return e.state.ToNumber(-1), nil
}

// SetNumber sets a numeric global.
func (e *Engine) SetNumber(name string, v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return
	}
	e.state.PushNumber(v)
	e.state.SetGlobal(name)
}

func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != nil {
		e.state.Close()
		e.state = nil
	}
}

func (e *Engine) popError(kind, source string) *LuaError {
	msg := "unknown Lua error"
	if e.state.GetTop() > 0 {
		if e.state.IsString(-1) {
			msg = e.state.ToString(-1)
		}
		e.state.Pop(1)
	}
	return parseError(kind, source, msg)
}

// parseError splits `chunk:line: message` into its parts.
func parseError(kind, source, msg string) *LuaError {
	out := &LuaError{Type: kind, Message: msg, Source: source}
	parts := strings.SplitN(msg, ":", 3)
	if len(parts) == 3 {
		var line int
		if n, err := fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &line); err == nil && n == 1 {
			out.Line = line
			out.Message = strings.TrimSpace(parts[2])
		}
	}
	return out
}
