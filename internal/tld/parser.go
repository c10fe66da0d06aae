package tld

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// ParseAllowList parses the IANA tlds-alpha-by-domain.txt format: one
// uppercase TLD per line, `#` lines are comments.
func ParseAllowList(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("tld: empty payload")
	}

	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, strings.ToUpper(line))
	}
	if errScan := scanner.Err(); errScan != nil {
		return nil, fmt.Errorf("tld: scan payload: %w", errScan)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("tld: no entries in payload")
	}
	return names, nil
}
