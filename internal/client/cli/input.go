package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/go-playground/validator/v10"
	"golang.org/x/term"
)

// bodyEnd alone on a line finishes a note body, so bodies may contain
// blank lines.
const bodyEnd = "."

// readPassword is swapped in tests to keep the terminal out of the way.
var readPassword = term.ReadPassword

var validate = validator.New()

// askLine shows "label: " and returns the trimmed answer. A final line
// without a newline is still accepted.
func askLine(r *bufio.Reader, w io.Writer, label string) (string, error) {
	if _, err := fmt.Fprintf(w, "%s: ", label); err != nil {
		return "", err
	}
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// askEmail reads an address and rejects anything that is not one.
func askEmail(r *bufio.Reader, w io.Writer) (string, error) {
	email, err := askLine(r, w, "Email")
	if err != nil {
		return "", err
	}
	if err := validate.Var(email, "required,email"); err != nil {
		return "", fmt.Errorf("%w: %q is not an email address", common.ErrorValidation, email)
	}
	return email, nil
}

// askPassword reads a password from the terminal without echo. The caller
// wipes the result.
func askPassword(w io.Writer, label string) ([]byte, error) {
	if _, err := fmt.Fprintf(w, "%s: ", label); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// askBody reads note text until a line holding only "." or the end of
// input. Blank lines inside the body are kept.
func askBody(r *bufio.Reader, w io.Writer, label string) (string, error) {
	if _, err := fmt.Fprintf(w, "%s (finish with a single %q line):\n", label, bodyEnd); err != nil {
		return "", err
	}

	var b strings.Builder
	for {
		line, err := r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == bodyEnd {
			break
		}
		if err != nil && line == "" {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", err
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if err != nil {
			break
		}
	}

	return strings.TrimRight(b.String(), "\n "), nil
}
