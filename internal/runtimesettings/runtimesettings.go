// Package runtimesettings parses and renders the ROMS-style line-oriented
// runtime control file (SPEC_FULL §4.7): a "key:" line followed by one or
// more whitespace-separated value lines, continuing until the next key
// line. Render is an exact round-trip for untouched blocks; unrecognized
// keys are preserved verbatim, and value tokens are kept as their original
// string form rather than reparsed into float64, to avoid precision loss.
//
// Grounded on distr1-distri/pb/readbuild.go and readmeta.go's
// "read whole file into a pooled buffer, parse into a typed tree" shape —
// there for a protobuf text format, here for ROMS's own line-block format,
// with a hand-written scanner since no textproto library applies to this
// wire format.
package runtimesettings

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/c-star-org/cstar"
)

// DateLayout is the wire format for date tokens in the ROMS control file.
const DateLayout = "2006-01-02 15:04:05"

// Block is one "key:" section: the key, its trailing same-line comment
// (usually a column-header string), and its raw value lines exactly as
// read, preserving leading whitespace and token spacing.
type Block struct {
	Key     string
	Comment string
	Lines   []string
}

// File is a parsed runtime-settings control file, an ordered sequence of
// Blocks. A leading preamble (comments/blank lines before the first "key:"
// line) is kept as a Block with an empty Key.
type File struct {
	Blocks []*Block
}

// Parse reads a ROMS-style control file from r.
func Parse(r io.Reader) (*File, error) {
	f := &File{}
	var cur *Block
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	for sc.Scan() {
		line := sc.Text()
		if key, comment, ok := splitKeyLine(line); ok {
			cur = &Block{Key: key, Comment: comment}
			f.Blocks = append(f.Blocks, cur)
			continue
		}
		if cur == nil {
			cur = &Block{}
			f.Blocks = append(f.Blocks, cur)
		}
		cur.Lines = append(cur.Lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, cstar.Wrap(cstar.KindValidation, err, "parsing runtime settings file")
	}
	return f, nil
}

// splitKeyLine reports whether line opens a new block: it starts at column
// zero (no leading whitespace) and its prefix up to the first ':' is a
// bare identifier (letters, digits, underscores, hyphens).
func splitKeyLine(line string) (key, comment string, ok bool) {
	if line == "" {
		return "", "", false
	}
	if line[0] == ' ' || line[0] == '\t' {
		return "", "", false
	}
	idx := strings.IndexByte(line, ':')
	if idx <= 0 {
		return "", "", false
	}
	candidate := line[:idx]
	for _, c := range candidate {
		if !(unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' || c == '-') {
			return "", "", false
		}
	}
	return candidate, strings.TrimSpace(line[idx+1:]), true
}

// Get returns the block named key, if present.
func (f *File) Get(key string) (*Block, bool) {
	for _, b := range f.Blocks {
		if b.Key == key {
			return b, true
		}
	}
	return nil, false
}

// SetLine replaces the text of value line index i within the block named
// key, preserving that line's original leading whitespace when idx is
// within range, or appending a default-indented line otherwise. Returns
// ValidationError if key does not exist — callers add new blocks via
// AppendBlock instead.
func (f *File) SetLine(key string, idx int, tokens ...string) error {
	b, ok := f.Get(key)
	if !ok {
		return cstar.New(cstar.KindValidation, "runtime settings file has no %q block", key)
	}
	indent := "          "
	if idx < len(b.Lines) {
		indent = leadingWhitespace(b.Lines[idx])
	}
	text := indent + strings.Join(tokens, "   ")
	if idx < len(b.Lines) {
		b.Lines[idx] = text
	} else {
		for len(b.Lines) < idx {
			b.Lines = append(b.Lines, "")
		}
		b.Lines = append(b.Lines, text)
	}
	return nil
}

func leadingWhitespace(s string) string {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return s[:i]
}

// AppendBlock adds a new key block with no preexisting sibling, used when
// the Simulation needs to inject a key the template did not declare.
func (f *File) AppendBlock(key, comment string, lines ...string) *Block {
	b := &Block{Key: key, Comment: comment, Lines: append([]string(nil), lines...)}
	f.Blocks = append(f.Blocks, b)
	return b
}

// SetPath sets the first value line of key's block to path, the
// substitution the Simulation performs for staged input-dataset locations
// (SPEC_FULL §4.7).
func (f *File) SetPath(key, path string) error {
	return f.SetLine(key, 0, path)
}

// SetDateTime sets the first value line of key's block to t formatted per
// DateLayout ("YYYY-MM-DD HH:MM:SS"), as SPEC_FULL §4.7 mandates for date
// fields.
func (f *File) SetDateTime(key string, t time.Time) error {
	return f.SetLine(key, 0, t.Format(DateLayout))
}

// SetTiling sets the rank-grid block (two integers: NtileI NtileJ), the
// substitution performed from Discretization.
func (f *File) SetTiling(key string, nProcsX, nProcsY int) error {
	return f.SetLine(key, 0, fmt.Sprintf("%d", nProcsX), fmt.Sprintf("%d", nProcsY))
}

// SetTimeStepSeconds rewrites only the dt token (second column) of a
// time_stepping block, leaving every other printed token — NTIMES, NDTFAST,
// NINFO — exactly as parsed, per SPEC_FULL §4.7's precision-preservation
// requirement.
func (f *File) SetTimeStepSeconds(key string, dt string) error {
	b, ok := f.Get(key)
	if !ok {
		return cstar.New(cstar.KindValidation, "runtime settings file has no %q block", key)
	}
	if len(b.Lines) == 0 {
		return cstar.New(cstar.KindValidation, "%q block has no value line to set dt on", key)
	}
	fields := strings.Fields(b.Lines[0])
	if len(fields) < 2 {
		return cstar.New(cstar.KindValidation, "%q block's first line has fewer than 2 tokens", key)
	}
	fields[1] = dt
	return f.SetLine(key, 0, fields...)
}

// Render writes f back out. Blocks and lines untouched since Parse render
// byte-identically to the source; blocks mutated via Set* render with their
// new token values and the original block's leading-whitespace style.
func (f *File) Render(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, b := range f.Blocks {
		if b.Key != "" {
			if b.Comment != "" {
				if _, err := fmt.Fprintf(bw, "%s: %s\n", b.Key, b.Comment); err != nil {
					return err
				}
			} else {
				if _, err := fmt.Fprintf(bw, "%s:\n", b.Key); err != nil {
					return err
				}
			}
		}
		for _, l := range b.Lines {
			if _, err := fmt.Fprintln(bw, l); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// String renders f to a string, for callers (Simulation.PreRun) that need
// the full text rather than a Writer.
func (f *File) String() string {
	var sb strings.Builder
	_ = f.Render(&sb)
	return sb.String()
}
