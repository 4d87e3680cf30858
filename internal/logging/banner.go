package logging

import (
	"fmt"
	"io"
	"strings"
)

// ANSI color codes.
const (
	reset = "\033[0m"
	bold  = "\033[1m"
	cyan  = "\033[36m"
	dim   = "\033[2m"
)

var logoLines = [6]string{
	`  _  ___ _       _          _     _            `,
	` | |/ (_) | ___ | |__  _ __(_) __| | __ _  ___ `,
	` | ' /| | |/ _ \| '_ \| '__| |/ _` + "`" + ` |/ _` + "`" + ` |/ _ \`,
	` | . \| | | (_) | |_) | |  | | (_| | (_| |  __/`,
	` |_|\_\_|_|\___/|_.__/|_|  |_|\__,_|\__, |\___|`,
	`                                    |___/      `,
}

// BannerInfo is printed below the logo.
type BannerInfo struct {
	Version string
	Addr    string
	Model   string
	Agent   []string
}

// PrintBanner prints the kilobridge ASCII art logo followed by the
// version, listen address, model and agent command. Colors are used only
// when w is a TTY.
func PrintBanner(w io.Writer, info BannerInfo) {
	color := isTerminal(w)

	for _, line := range logoLines {
		if color {
			_, _ = fmt.Fprintf(w, "%s%s%s\n", bold+cyan, line, reset)
		} else {
			_, _ = fmt.Fprintln(w, line)
		}
	}

	fields := [][2]string{
		{"version", info.Version},
		{"addr", info.Addr},
		{"model", info.Model},
		{"agent", strings.Join(info.Agent, " ")},
	}
	var b strings.Builder
	b.WriteString("\n ")
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if color {
			fmt.Fprintf(&b, " %s%s%s %s  ", dim, f[0], reset, f[1])
		} else {
			fmt.Fprintf(&b, " %s %s  ", f[0], f[1])
		}
	}
	_, _ = fmt.Fprintln(w, strings.TrimRight(b.String(), " ")+"\n")
}
