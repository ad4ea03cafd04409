package hotkey

import (
	"fmt"
	"log"
	"strings"
	"sync"

	gohook "github.com/robotn/gohook"
)

// Listener fires a callback when a global key combination is held down.
type Listener struct {
	combo    string
	callback func()

	mu      sync.Mutex
	running bool
}

// NewListener parses combo ("Ctrl+Alt+S") eagerly so configuration errors
// surface before the hook starts.
func NewListener(combo string, callback func()) (*Listener, error) {
	if _, err := newMatcher(combo); err != nil {
		return nil, err
	}
	return &Listener{combo: combo, callback: callback}, nil
}

// Start installs the global keyboard hook and processes events on a
// background goroutine until Stop.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return nil
	}
	m, err := newMatcher(l.combo)
	if err != nil {
		return err
	}

	evChan := gohook.Start()
	if evChan == nil {
		return fmt.Errorf("gohook.Start() returned nil channel")
	}
	l.running = true
	log.Printf("Hotkey listener configured for: %s", l.combo)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC in hotkey goroutine: %v", r)
			}
		}()
		for ev := range evChan {
			switch ev.Kind {
			case gohook.KeyDown:
				if m.press(ev.Rawcode) {
					log.Printf("Hotkey activated: %s", l.combo)
					if l.callback != nil {
						l.callback()
					}
				}
			case gohook.KeyUp:
				m.release(ev.Rawcode)
			}
		}
		log.Printf("Event channel closed")
	}()
	return nil
}

// Stop removes the hook. The event goroutine exits when gohook closes its channel.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	l.running = false
	gohook.End()
}

// matcher tracks which keys of one combination are down.
type matcher struct {
	keys    []comboKey
	pressed []bool
}

type comboKey struct {
	name     string
	rawcodes []uint16
}

func newMatcher(combo string) (*matcher, error) {
	names := parseHotkey(combo)
	m := &matcher{}
	for _, name := range names {
		codes := keyNameToRawcodes(name)
		if len(codes) == 0 {
			return nil, fmt.Errorf("hotkey %q: unknown key %q", combo, name)
		}
		m.keys = append(m.keys, comboKey{name: name, rawcodes: codes})
	}
	if len(m.keys) == 0 {
		return nil, fmt.Errorf("hotkey %q: no keys", combo)
	}
	m.pressed = make([]bool, len(m.keys))
	return m, nil
}

// press records a key down and reports whether the whole combination is now
// held. A completed combination resets, so holding it fires once.
func (m *matcher) press(code uint16) bool {
	for i, k := range m.keys {
		if k.matches(code) {
			m.pressed[i] = true
		}
	}
	for _, p := range m.pressed {
		if !p {
			return false
		}
	}
	for i := range m.pressed {
		m.pressed[i] = false
	}
	return true
}

func (m *matcher) release(code uint16) {
	for i, k := range m.keys {
		if k.matches(code) {
			m.pressed[i] = false
		}
	}
}

func (k comboKey) matches(code uint16) bool {
	for _, c := range k.rawcodes {
		if c == code {
			return true
		}
	}
	return false
}

// parseHotkey converts a hotkey string like "Ctrl+Alt+s" to normalized key names
func parseHotkey(hotkeyConfig string) []string {
	var keys []string
	for _, part := range strings.Split(strings.ToLower(hotkeyConfig), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "":
			continue
		case "win", "cmd", "super":
			keys = append(keys, "cmd")
		default:
			keys = append(keys, part)
		}
	}
	return keys
}

// Windows virtual key codes, which gohook reports as Rawcode.
var rawcodes = func() map[string][]uint16 {
	m := map[string][]uint16{
		// Modifiers map to both left and right variants.
		"ctrl":  {162, 163}, // VK_LCONTROL, VK_RCONTROL
		"alt":   {164, 165}, // VK_LMENU, VK_RMENU
		"shift": {160, 161}, // VK_LSHIFT, VK_RSHIFT
		"cmd":   {91, 92},   // VK_LWIN, VK_RWIN

		"space":     {32},
		"enter":     {13},
		"return":    {13},
		"esc":       {27},
		"escape":    {27},
		"tab":       {9},
		"backspace": {8},
		"delete":    {46},
		"del":       {46},
		"insert":    {45},
		"ins":       {45},
		"home":      {36},
		"end":       {35},
		"pageup":    {33},
		"pgup":      {33},
		"pagedown":  {34},
		"pgdn":      {34},
		"left":      {37},
		"up":        {38},
		"right":     {39},
		"down":      {40},

		"printscreen": {44},
		"prtsc":       {44},
	}
	m["win"], m["super"] = m["cmd"], m["cmd"]
	for c := 'a'; c <= 'z'; c++ {
		m[string(c)] = []uint16{uint16('A' + (c - 'a'))}
	}
	for d := '0'; d <= '9'; d++ {
		m[string(d)] = []uint16{uint16(d)}
	}
	for n := 1; n <= 24; n++ {
		m[fmt.Sprintf("f%d", n)] = []uint16{uint16(111 + n)} // VK_F1 = 112
	}
	return m
}()

// keyNameToRawcodes maps a key name to its Windows virtual key code rawcodes
func keyNameToRawcodes(keyName string) []uint16 {
	keyName = strings.ToLower(strings.TrimSpace(keyName))
	if codes, ok := rawcodes[keyName]; ok {
		return codes
	}
	log.Printf("WARNING: Unknown key name '%s', cannot map to rawcode", keyName)
	return nil
}
