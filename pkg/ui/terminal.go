package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// ASCII logo for the application
const ASCIILogo = `
    ╔════════════════════════════════════════════════════════════════╗
    ║ ███████╗ █████╗  █████╗ ███████╗███████╗████████╗ ██████╗██╗  ██╗ ║
    ║ ██╔════╝██╔══██╗██╔══██╗██╔════╝██╔════╝╚══██╔══╝██╔════╝██║  ██║ ║
    ║ █████╗  ███████║███████║█████╗  █████╗     ██║   ██║     ███████║ ║
    ║ ██╔══╝  ██╔══██║██╔══██║██╔══╝  ██╔══╝     ██║   ██║     ██╔══██║ ║
    ║ ███████╗██║  ██║██║  ██║██║     ███████╗   ██║   ╚██████╗██║  ██║ ║
    ║ ╚══════╝╚═╝  ╚═╝╚═╝  ╚═╝╚═╝     ╚══════╝   ╚═╝    ╚═════╝╚═╝  ╚═╝ ║
    ║             EARTH AS ART - GALLERY DOWNLOAD UTILITY              ║
    ╚════════════════════════════════════════════════════════════════╝
`

var (
	mu     sync.Mutex
	out    io.Writer = os.Stdout
	quiet  bool
	colors = detectColor(os.Stdout)
)

// Styles for terminal output
var (
	cyanStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FFFF"))
	yellowStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	redStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true)
	greenStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#39FF14")).Bold(true)
	magentaStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF00FF"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

// Color functions for terminal output
var (
	Cyan    = colorize(cyanStyle)
	Yellow  = colorize(yellowStyle)
	Red     = colorize(redStyle)
	Green   = colorize(greenStyle)
	Magenta = colorize(magentaStyle)
	Dim     = colorize(dimStyle)
)

func detectColor(f *os.File) bool {
	return term.IsTerminal(int(f.Fd())) && os.Getenv("NO_COLOR") == ""
}

// colorize returns a function that renders text with style when colors are on
func colorize(style lipgloss.Style) func(string) string {
	return func(text string) string {
		if !ColorEnabled() {
			return text
		}
		return style.Render(text)
	}
}

// SetOutput redirects everything the package prints. Colors follow whether
// w is a terminal.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	f, ok := w.(*os.File)
	setColorLocked(ok && detectColor(f))
}

// SetColor forces colored output on or off
func SetColor(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	setColorLocked(enabled)
}

func setColorLocked(enabled bool) {
	colors = enabled
	if enabled {
		lipgloss.SetColorProfile(termenv.TrueColor)
	} else {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// ColorEnabled reports whether output is colored
func ColorEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return colors
}

// SetQuietMode suppresses everything except errors
func SetQuietMode(q bool) {
	mu.Lock()
	defer mu.Unlock()
	quiet = q
}

// IsQuiet reports whether quiet mode is on
func IsQuiet() bool {
	mu.Lock()
	defer mu.Unlock()
	return quiet
}

// IsTerminal reports whether the output is an interactive terminal
func IsTerminal() bool {
	mu.Lock()
	defer mu.Unlock()
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func writer() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return out
}

func printf(format string, args ...interface{}) {
	fmt.Fprintf(writer(), format, args...)
}

// PrintLogo prints the ASCII logo with color
func PrintLogo() {
	if IsQuiet() {
		return
	}
	printf("%s", Cyan(ASCIILogo))
}

// PrintError prints an error message in red. Errors are shown in quiet mode.
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		printf("%s\n", Red(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		printf("%s\n", Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	if IsQuiet() {
		return
	}
	printf("%s\n", Green(msg))
}

// PrintInfo prints an info message in cyan
func PrintInfo(label string, value string) {
	if IsQuiet() {
		return
	}
	printf("%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if IsQuiet() {
		return
	}
	if len(args) > 0 {
		printf("%s\n", Yellow(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		printf("%s\n", Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	if IsQuiet() {
		return
	}
	printf("%s\n", Magenta(msg))
}
