package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadInput resolves the input argument: an existing file is read as a list of
// URLs, anything else is treated as a single URL.
func ReadInput(input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, errors.New("input is empty")
	}
	info, err := os.Stat(input)
	if err != nil || info.IsDir() {
		return []string{input}, nil
	}
	// #nosec G304 -- the user names the input file.
	f, err := os.Open(input)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseURLList(f)
}

// ParseURLList reads one URL per line, skipping blank lines and # comments.
func ParseURLList(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return urls, nil
}
