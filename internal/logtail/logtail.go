package logtail

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Read returns at most maxLines from the end of the file at path. A
// non-positive maxLines returns every line. A missing file yields no lines.
func Read(path string, maxLines int) ([]string, error) {
	return ReadMatching(path, maxLines)
}

// ReadMatching is Read restricted to lines containing every term. Empty
// terms are ignored.
func ReadMatching(path string, maxLines int, terms ...string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	keep := matcher(terms)
	var ring []string
	if maxLines > 0 {
		ring = make([]string, maxLines)
	}
	var all []string
	count, idx := 0, 0

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !keep(line) {
			continue
		}
		if maxLines <= 0 {
			all = append(all, line)
			continue
		}
		ring[idx] = line
		idx = (idx + 1) % maxLines
		if count < maxLines {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	if maxLines <= 0 {
		return all, nil
	}
	lines := make([]string, count)
	if count == maxLines {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%maxLines]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}

func matcher(terms []string) func(string) bool {
	var active []string
	for _, term := range terms {
		if term = strings.TrimSpace(term); term != "" {
			active = append(active, term)
		}
	}
	return func(line string) bool {
		for _, term := range active {
			if !strings.Contains(line, term) {
				return false
			}
		}
		return true
	}
}

// Line is one parsed console log line.
type Line struct {
	Raw       string
	Time      time.Time
	Level     string
	Component string
	Message   string
	Fields    string
}

// Parse splits a console-format line ("<rfc3339> LEVEL component: msg k=v")
// into its parts. Lines in any other shape come back with only Raw and
// Message set.
func Parse(raw string) Line {
	line := Line{Raw: raw, Message: raw}
	ts, rest, ok := strings.Cut(raw, " ")
	if !ok {
		return line
	}
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return line
	}
	rest = strings.TrimLeft(rest, " ")
	level, rest, _ := strings.Cut(rest, " ")
	line.Time = parsed
	line.Level = strings.ToUpper(level)
	rest = strings.TrimLeft(rest, " ")

	if head, tail, found := strings.Cut(rest, ": "); found && !strings.ContainsAny(head, " =") {
		line.Component = head
		rest = tail
	}
	line.Message = rest
	if i := fieldStart(rest); i >= 0 {
		line.Message = strings.TrimSpace(rest[:i])
		line.Fields = strings.TrimSpace(rest[i:])
	}
	return line
}

// fieldStart finds the first " key=" token, which begins the attribute list.
func fieldStart(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] != ' ' {
			continue
		}
		word := s[i+1:]
		if end := strings.IndexByte(word, ' '); end >= 0 {
			word = word[:end]
		}
		if eq := strings.IndexByte(word, '='); eq > 0 && !strings.ContainsAny(word[:eq], "\"'") {
			return i
		}
	}
	return -1
}
