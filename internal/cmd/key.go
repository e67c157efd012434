package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readKey prompts for the store key on out. Terminals read without echo;
// anything else (a pipe, a test) reads one line.
func readKey(in io.Reader, out io.Writer) (string, error) {
	_, _ = fmt.Fprint(out, "Store key: ")

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		key, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("reading store key: %w", err)
		}
		return string(key), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("reading store key: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
