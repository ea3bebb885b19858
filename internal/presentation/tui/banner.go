package tui

import (
	"fmt"
	"strings"

	"github.com/muesli/termenv"
)

// Banner returns the ASCII art banner with the library version.
func Banner(version string) string {
	p := termenv.ColorProfile()
	lines := []string{
		"                       _ _",
		"  ___  ___ _ __   __ _| (_) ___ _ __",
		" / _ \\/ __| '_ \\ / _` | | |/ _ \\ '__|",
		"|  __/\\__ \\ |_) | (_| | | |  __/ |",
		" \\___||___/ .__/ \\__,_|_|_|\\___|_|",
		"          |_|",
	}
	colors := []string{"#34d399", "#2dd4bf", "#22d3ee", "#38bdf8", "#60a5fa", "#818cf8"}

	var sb strings.Builder
	sb.WriteString("\n")
	for i, line := range lines {
		fmt.Fprintln(&sb, termenv.String(line).Foreground(p.Color(colors[i%len(colors)])))
	}
	fmt.Fprintf(&sb, "  v%s\n\n", strings.TrimSpace(version))
	return sb.String()
}

// PrintBanner outputs the banner on stdout.
func PrintBanner(version string) {
	fmt.Print(Banner(version))
}
