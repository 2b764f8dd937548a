package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// input reads answers from the user. One input is shared by all prompts
// of a command so buffered lines are not lost between them.
type input struct {
	file *os.File // set when reading from a terminal
	r    *bufio.Reader
}

func newInput(in io.Reader) *input {
	i := &input{r: bufio.NewReader(in)}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		i.file = f
	}
	return i
}

func (i *input) line() (string, error) {
	s, err := i.r.ReadString('\n')
	if err != nil && (err != io.EOF || s == "") {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// secret prompts for a secret. On a terminal input is hidden.
func (i *input) secret(out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	if i.file != nil {
		b, err := term.ReadPassword(int(i.file.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	s, err := i.line()
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return s, nil
}

// confirmer returns a confirm function for job submission. With assumeYes
// the prompt is printed and accepted without reading input.
func confirmer(in io.Reader, out io.Writer, assumeYes bool) func(string) bool {
	return func(prompt string) bool {
		if assumeYes {
			fmt.Fprintf(out, "%s yes\n", prompt)
			return true
		}
		fmt.Fprintf(out, "%s [y/N]: ", prompt)
		answer, err := newInput(in).line()
		if err != nil {
			return false
		}
		answer = strings.ToLower(answer)
		return answer == "y" || answer == "yes"
	}
}
