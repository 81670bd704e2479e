package notify

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	bannerBase = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	bannerStyles = map[Type]lipgloss.Style{
		Danger:  bannerBase.Foreground(lipgloss.Color("15")).Background(lipgloss.Color("160")),
		Success: bannerBase.Foreground(lipgloss.Color("15")).Background(lipgloss.Color("28")),
		Warning: bannerBase.Foreground(lipgloss.Color("0")).Background(lipgloss.Color("214")),
		Info:    bannerBase.Foreground(lipgloss.Color("15")).Background(lipgloss.Color("25")),
	}

	messageStyle = lipgloss.NewStyle().PaddingLeft(1)
)

// TerminalSink prints banners to a terminal stream, usually stderr.
type TerminalSink struct {
	mu  sync.Mutex
	out io.Writer
}

// NewTerminalSink creates a sink writing to out.
func NewTerminalSink(out io.Writer) *TerminalSink {
	return &TerminalSink{out: out}
}

func (s *TerminalSink) Show(n Notification) {
	style, ok := bannerStyles[n.Type]
	if !ok {
		style = bannerStyles[Info]
	}

	var b strings.Builder
	b.WriteString(style.Render(n.Title))
	if msg := strings.TrimSpace(n.Message); msg != "" {
		b.WriteString(messageStyle.Render(msg))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, b.String())
}
