package imremote

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCommand_State(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		start InputState
		check func(t *testing.T, in InputState)
	}{
		{
			name: "mouse move",
			text: "ImMouseMove=10,20",
			check: func(t *testing.T, in InputState) {
				require.Equal(t, [2]float32{10, 20}, in.MousePos)
			},
		},
		{
			name: "mouse press left",
			text: "ImMousePress=1,0",
			check: func(t *testing.T, in InputState) {
				require.Equal(t, MouseLeft, in.MouseButtons)
			},
		},
		{
			name: "mouse press right",
			text: "ImMousePress=0,1",
			check: func(t *testing.T, in InputState) {
				require.Equal(t, MouseRight, in.MouseButtons)
			},
		},
		{
			name: "mouse wheel",
			text: "ImMouseWheel=-3",
			check: func(t *testing.T, in InputState) {
				require.Equal(t, -3, in.MouseWheel)
			},
		},
		{
			name: "key down with modifiers",
			text: "ImKeyDown=65,1,0",
			check: func(t *testing.T, in InputState) {
				require.True(t, in.KeysDown[65])
				require.True(t, in.KeyShift)
				require.False(t, in.KeyCtrl)
			},
		},
		{
			name: "key down with negative modifiers",
			text: "ImKeyDown=65,-1,-1",
			check: func(t *testing.T, in InputState) {
				require.True(t, in.KeyShift)
				require.True(t, in.KeyCtrl)
			},
		},
		{
			name:  "key up clears both modifiers",
			text:  "ImKeyUp=65",
			start: InputState{KeyCtrl: true, KeyShift: true, KeysDown: func() (k [NumKeys]bool) { k[65], k[66] = true, true; return }()},
			check: func(t *testing.T, in InputState) {
				require.False(t, in.KeysDown[65])
				require.True(t, in.KeysDown[66])
				require.False(t, in.KeyShift)
				require.False(t, in.KeyCtrl)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, ok := parseCommand(tt.text)
			require.True(t, ok)
			require.NotNil(t, cmd.apply)

			in := tt.start
			cmd.apply(&in)
			tt.check(t, in)
		})
	}
}

func TestParseCommand_Malformed(t *testing.T) {
	for _, text := range []string{
		"",
		"ImMouseMove",
		"ImMouseMove=",
		"ImMouseMove=1",
		"ImMouseMove=1,2,3",
		"ImMouseMove=a,b",
		"immousemove=1,2",
		"ImMousePress=1",
		"ImMouseWheel=x",
		"ImKeyDown=65,1",
		"ImKeyDown=256,0,0",
		"ImKeyDown=-1,0,0",
		"ImKeyUp=",
		"ImKeyUp=300",
		"ImKeyPress=",
		"ImKeyPress=\xff",
		"ImUnknown=1",
		"ImInit",
	} {
		_, ok := parseCommand(text)
		require.False(t, ok, "%q", text)
	}
}

// recordingRenderer records forwarded input.
type recordingRenderer struct {
	mu        sync.Mutex
	chars     []rune
	clipboard []string
	pixels    []byte
	width     int
	height    int
}

func (r *recordingRenderer) FontAtlas() ([]byte, int, int) {
	return r.pixels, r.width, r.height
}

func (r *recordingRenderer) AddInputCharacter(c rune) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chars = append(r.chars, c)
}

func (r *recordingRenderer) SetClipboardText(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clipboard = append(r.clipboard, text)
}

func TestParseCommand_Forwarded(t *testing.T) {
	r := &recordingRenderer{}

	cmd, ok := parseCommand("ImKeyPress=a")
	require.True(t, ok)
	require.Nil(t, cmd.apply)
	cmd.forward(r)

	cmd, ok = parseCommand("ImKeyPress=é!")
	require.True(t, ok)
	cmd.forward(r)

	cmd, ok = parseCommand("ImClipboard=hello, world=1")
	require.True(t, ok)
	cmd.forward(r)

	cmd, ok = parseCommand("ImClipboard=")
	require.True(t, ok)
	cmd.forward(r)

	require.Equal(t, []rune{'a', 'é'}, r.chars)
	require.Equal(t, []string{"hello, world=1", ""}, r.clipboard)
}
