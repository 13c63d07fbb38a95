// internal/verification/verification.go
package verification

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
)

// DefaultPattern matches a standalone six digit code.
const DefaultPattern = `\b(\d{6})\b`

var defaultPattern = regexp.MustCompile(DefaultPattern)

// ErrEmptyCode is returned when the user enters a blank line.
var ErrEmptyCode = errors.New("verification: empty code")

// Provider supplies the one-time code the login flow asks for.
type Provider interface {
	Code(ctx context.Context) (string, error)
}

// ExtractCode finds the first code in text. The first capture group is used
// when the pattern has one, the whole match otherwise. A nil pattern means DefaultPattern.
func ExtractCode(text string, pattern *regexp.Regexp) (string, bool) {
	if pattern == nil {
		pattern = defaultPattern
	}
	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	if len(m) > 1 && m[1] != "" {
		return m[1], true
	}
	return m[0], true
}

// PromptProvider asks the user for the code on a terminal. A read abandoned
// by a canceled Code stays pending while In blocks, and its line is returned
// by the next call.
type PromptProvider struct {
	In  io.Reader
	Out io.Writer

	mu      sync.Mutex
	reader  *bufio.Reader
	pending chan lineResult
}

type lineResult struct {
	line string
	err  error
}

// Code prints the prompt and reads one line. The read is abandoned when ctx ends.
func (p *PromptProvider) Code(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := fmt.Fprint(p.Out, "Enter login code: "); err != nil {
		return "", err
	}

	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	if p.pending == nil {
		p.pending = make(chan lineResult, 1)
		go func(r *bufio.Reader, out chan<- lineResult) {
			line, err := r.ReadString('\n')
			if errors.Is(err, io.EOF) && line != "" {
				err = nil
			}
			out <- lineResult{line: line, err: err}
		}(p.reader, p.pending)
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-p.pending:
		p.pending = nil
		if res.err != nil {
			return "", fmt.Errorf("read code: %w", res.err)
		}
		code := strings.TrimSpace(res.line)
		if code == "" {
			return "", ErrEmptyCode
		}
		return code, nil
	}
}
