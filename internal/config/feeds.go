package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadFeedList reads a newline-delimited list of feed URLs. Blank lines and
// lines starting with '#' are skipped.
func LoadFeedList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening feeds file: %w", err)
	}
	defer f.Close()

	var feeds []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		feeds = append(feeds, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading feeds file: %w", err)
	}
	return feeds, nil
}
