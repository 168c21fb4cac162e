package output

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"golang.org/x/term"
)

// Character columns of the thermal printers tills use.
const (
	Paper58mm = 32
	Paper80mm = 48
)

// RenderOptions sizes a receipt or report for the screen or the printer.
type RenderOptions struct {
	// Width in columns. Zero follows the terminal, kept within paper sizes.
	Width int
	// Printer renders plain ASCII with no colour, as the printer will get it.
	Printer bool
}

// Render lays out receipt markdown in a paper-sized column.
func Render(md string, opts RenderOptions) (string, error) {
	if strings.TrimSpace(md) == "" {
		return "", nil
	}
	width := opts.Width
	if width <= 0 {
		width = screenWidth()
	}

	style := glamour.WithAutoStyle()
	if opts.Printer {
		style = glamour.WithStyles(styles.ASCIIStyleConfig)
		md = printable(md)
	}
	renderer, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(paperWidth(width)))
	if err != nil {
		return "", err
	}
	rendered, err := renderer.Render(md)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(rendered, "\n"), nil
}

// paperWidth keeps w between the narrow and the wide roll.
func paperWidth(w int) int {
	switch {
	case w < Paper58mm:
		return Paper58mm
	case w > Paper80mm:
		return Paper80mm
	}
	return w
}

func screenWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	if cols, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && cols > 0 {
		return cols
	}
	return Paper80mm
}

var printerReplacer = strings.NewReplacer("·", "-", "✓", "v", "…", "...")

// printable swaps the few non-ASCII marks receipts use for ones every
// printer code page has.
func printable(md string) string {
	return printerReplacer.Replace(md)
}
