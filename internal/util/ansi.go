package util

import "fmt"

// ANSI escape helpers shared by the terminal sink.
const (
	AnsiReset = "\033[0m"
	AnsiBold  = "\033[1m"
	AnsiDim   = "\033[2m"
	ClearLine = "\033[2K\r"
)

// Colorize wraps s in the given ANSI color token (e.g. "36" for cyan).
func Colorize(token, s string) string {
	if token == "" {
		return s
	}
	return fmt.Sprintf("\033[%sm%s%s", token, s, AnsiReset)
}

// Dim renders s in the terminal's faint style.
func Dim(s string) string {
	return AnsiDim + s + AnsiReset
}

// Bold renders s in the terminal's bold style.
func Bold(s string) string {
	return AnsiBold + s + AnsiReset
}
