/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package moderation screens player guesses against a wordlist.
package moderation

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/samber/lo"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// defaultWords only match as whole words, so "Hancock" and "parse" pass.
var defaultWords = []string{
	"arse",
	"ass",
	"asshole",
	"bastard",
	"bollocks",
	"cock",
	"dick",
	"piss",
	"pussy",
	"retard",
	"slut",
	"twat",
}

// defaultStems match anywhere, including across spaces and punctuation.
var defaultStems = []string{
	"bitch",
	"cunt",
	"fuck",
	"nigger",
	"shit",
	"wanker",
	"whore",
}

var leet = strings.NewReplacer(
	"0", "o",
	"1", "i",
	"3", "e",
	"4", "a",
	"5", "s",
	"7", "t",
	"@", "a",
	"$", "s",
)

// minStem is the shortest term matched inside the squashed text. Shorter
// terms would fire inside ordinary words.
const minStem = 4

// Filter rejects text containing a banned term.
type Filter struct {
	words map[string]struct{}
	stems []string
}

// New returns a filter with the built-in terms plus extra. A single-word
// extra term is banned as a whole word; a multi-word one is matched inside
// the squashed text like the built-in stems.
func New(extra ...string) *Filter {
	f := &Filter{words: make(map[string]struct{})}

	stems := slices.Clone(defaultStems)

	for _, w := range append(slices.Clone(defaultWords), extra...) {
		n := normalize(w)
		if len(letterRuns(n)) > 1 {
			stems = append(stems, n)

			continue
		}

		if n = squash(n); n != "" {
			f.words[n] = struct{}{}
		}
	}

	f.stems = lo.Uniq(lo.FilterMap(stems, func(s string, _ int) (string, bool) {
		s = squash(normalize(s))
		return s, utf8.RuneCountInString(s) >= minStem
	}))

	return f
}

// Load reads extra terms from path, one per line. Blank lines and lines
// starting with # are ignored.
func Load(path string) (*Filter, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wordlist: %w", err)
	}
	defer file.Close()

	terms, err := readTerms(file)
	if err != nil {
		return nil, fmt.Errorf("read wordlist %s: %w", path, err)
	}

	return New(terms...), nil
}

func readTerms(r io.Reader) ([]string, error) {
	var lines []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return lo.Filter(lines, func(line string, _ int) bool {
		line = strings.TrimSpace(line)
		return line != "" && !strings.HasPrefix(line, "#")
	}), nil
}

// Len returns the number of distinct banned terms.
func (f *Filter) Len() int {
	return len(f.words) + len(f.stems)
}

// IsClean reports whether text is free of banned terms.
func (f *Filter) IsClean(text string) bool {
	n := normalize(text)

	if lo.SomeBy(letterRuns(n), func(w string) bool { _, banned := f.words[w]; return banned }) {
		return false
	}

	joined := squash(n)

	return !lo.SomeBy(f.stems, func(stem string) bool { return strings.Contains(joined, stem) })
}

// normalize strips accents, folds case and undoes common digit
// substitutions.
func normalize(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}

	return leet.Replace(cases.Fold().String(out))
}

func letterRuns(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
}

func squash(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return r
		}
		return -1
	}, s)
}
