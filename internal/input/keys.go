package input

import "strings"

// Hook names that differ from their wire symbol
var hookToWire = map[string]string{
	"PAGEUP":      "page_up",
	"PAGEDOWN":    "page_down",
	"CAPSLOCK":    "caps_lock",
	"PRINTSCREEN": "print_screen",
}

// Wire symbols that robotgo spells differently
var wireToRobot = map[string]string{
	"page_up":      "pageup",
	"page_down":    "pagedown",
	"caps_lock":    "capslock",
	"print_screen": "printscreen",
	"return":       "enter",
	"escape":       "esc",
	"ctrl_l":       "lctrl",
	"ctrl_r":       "rctrl",
	"shift_l":      "lshift",
	"shift_r":      "rshift",
	"alt_l":        "lalt",
	"alt_r":        "ralt",
	"cmd_l":        "lcmd",
	"cmd_r":        "rcmd",
}

// KeySymbol turns a hook key name ("CTRL", "PAGEUP", "A") into its wire
// symbol ("ctrl", "page_up", "a").
func KeySymbol(hookName string) string {
	if s, ok := hookToWire[hookName]; ok {
		return s
	}
	return strings.ToLower(hookName)
}

// ButtonName maps a hook button name to a wire button. ok is false for
// buttons the protocol has no name for.
func ButtonName(hookName string) (string, bool) {
	switch hookName {
	case "MOUSE1":
		return ButtonLeft, true
	case "MOUSE2":
		return ButtonMiddle, true
	case "MOUSE3":
		return ButtonRight, true
	}
	return "", false
}

// robotKey maps a wire symbol to the robotgo key name. Single characters
// pass through unchanged so shifted punctuation survives.
func robotKey(symbol string) string {
	if len(symbol) == 1 {
		return symbol
	}
	s := strings.ToLower(symbol)
	if r, ok := wireToRobot[s]; ok {
		return r
	}
	return s
}
