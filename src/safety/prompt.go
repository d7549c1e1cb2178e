// Package safety centralizes the pipeline's interactive prompts so every
// one of them can be suppressed for non-interactive runs.
package safety

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Options controls prompting behaviour for a whole run.
type Options struct {
	// NoPrompt suppresses every prompt; questions resolve to their
	// documented default.
	NoPrompt bool
	// Yes answers every confirmation affirmatively without prompting.
	Yes bool
}

// Confirm asks a yes/no question.
// - With opts.Yes it returns true without prompting.
// - With opts.NoPrompt it returns def without prompting.
// The caller decides what to do with the result.
func Confirm(opts Options, in io.Reader, out io.Writer, question string, def bool) (bool, error) {
	if opts.Yes {
		return true, nil
	}
	if opts.NoPrompt {
		return def, nil
	}
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	if out != nil {
		fmt.Fprintf(out, "%s %s: ", strings.TrimSpace(question), hint)
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	ans := strings.TrimSpace(strings.ToLower(line))
	if ans == "" {
		return def, nil
	}
	return ans == "y" || ans == "yes", nil
}

// ReadPassword prompts for a password without echo when stdin is a
// terminal, falling back to a plain line read otherwise (pipes, tests).
func ReadPassword(opts Options, in io.Reader, out io.Writer, prompt string) (string, error) {
	if opts.NoPrompt {
		return "", fmt.Errorf("password required but prompting is disabled")
	}
	if out != nil {
		fmt.Fprintf(out, "%s: ", strings.TrimSpace(prompt))
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if out != nil {
			fmt.Fprintln(out)
		}
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
