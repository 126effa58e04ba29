package imremote

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// NumKeys is the size of the key state table.
const NumKeys = 256

// Mouse button bits.
const (
	MouseLeft  = 1 << 0
	MouseRight = 1 << 1
)

// InputState is the most recent input received from the remote client.
type InputState struct {
	MousePos     [2]float32
	MouseButtons int
	MouseWheel   int
	KeyCtrl      bool
	KeyShift     bool
	KeysDown     [NumKeys]bool
}

// Text commands sent by the client.
const (
	InitToken = "ImInit"

	cmdMouseMove  = "ImMouseMove="
	cmdMousePress = "ImMousePress="
	cmdMouseWheel = "ImMouseWheel="
	cmdKeyDown    = "ImKeyDown="
	cmdKeyUp      = "ImKeyUp="
	cmdKeyPress   = "ImKeyPress="
	cmdClipboard  = "ImClipboard="
)

// command is a parsed input command. Commands that change InputState
// implement apply; the rest are forwarded to the Renderer.
type command struct {
	name string
	// apply mutates the input state. Nil for forwarded commands.
	apply func(*InputState)
	// forward delivers the command to the renderer. Nil for state commands.
	forward func(Renderer)
}

// parseCommand matches text against the known command prefixes. It returns
// false for unknown or malformed commands.
func parseCommand(text string) (command, bool) {
	switch {
	case strings.HasPrefix(text, cmdMouseMove):
		f, ok := parseInts(text[len(cmdMouseMove):], 2)
		if !ok {
			return command{}, false
		}
		return command{name: "mouse_move", apply: func(in *InputState) {
			in.MousePos = [2]float32{float32(f[0]), float32(f[1])}
		}}, true

	case strings.HasPrefix(text, cmdMousePress):
		f, ok := parseInts(text[len(cmdMousePress):], 2)
		if !ok {
			return command{}, false
		}
		return command{name: "mouse_press", apply: func(in *InputState) {
			in.MouseButtons = f[0] | f[1]<<1
		}}, true

	case strings.HasPrefix(text, cmdMouseWheel):
		f, ok := parseInts(text[len(cmdMouseWheel):], 1)
		if !ok {
			return command{}, false
		}
		return command{name: "mouse_wheel", apply: func(in *InputState) {
			in.MouseWheel = f[0]
		}}, true

	case strings.HasPrefix(text, cmdKeyDown):
		f, ok := parseInts(text[len(cmdKeyDown):], 3)
		if !ok || !validKey(f[0]) {
			return command{}, false
		}
		return command{name: "key_down", apply: func(in *InputState) {
			in.KeysDown[f[0]] = true
			in.KeyShift = f[1] != 0
			in.KeyCtrl = f[2] != 0
		}}, true

	case strings.HasPrefix(text, cmdKeyUp):
		f, ok := parseInts(text[len(cmdKeyUp):], 1)
		if !ok || !validKey(f[0]) {
			return command{}, false
		}
		return command{name: "key_up", apply: func(in *InputState) {
			in.KeysDown[f[0]] = false
			in.KeyShift = false
			in.KeyCtrl = false
		}}, true

	case strings.HasPrefix(text, cmdKeyPress):
		c, size := utf8.DecodeRuneInString(text[len(cmdKeyPress):])
		if c == utf8.RuneError && size <= 1 {
			return command{}, false
		}
		return command{name: "key_press", forward: func(r Renderer) {
			r.AddInputCharacter(c)
		}}, true

	case strings.HasPrefix(text, cmdClipboard):
		clip := text[len(cmdClipboard):]
		return command{name: "clipboard", forward: func(r Renderer) {
			r.SetClipboardText(clip)
		}}, true
	}

	return command{}, false
}

// parseInts parses exactly n comma-separated decimal integers.
func parseInts(s string, n int) ([]int, bool) {
	fields := strings.Split(s, ",")
	if len(fields) != n {
		return nil, false
	}
	out := make([]int, n)
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func validKey(k int) bool {
	return k >= 0 && k < NumKeys
}
