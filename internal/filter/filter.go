// Package filter narrows and reshapes command output with JMESPath
// expressions or a shell command.
package filter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/jmespath/go-jmespath"
)

const (
	// QueryShellTimeout is the maximum time allowed for query shell command execution
	QueryShellTimeout = 30 * time.Second
)

var (
	// Shell command pattern: $(command)
	shellPattern = regexp.MustCompile(`^\$\((.+)\)$`)
)

// Result is the output of Apply. Exactly one of Data or Text is meaningful:
// Text is set when the query was a shell command.
type Result struct {
	Data interface{}
	Text string
	// Shell reports that Text holds shell output
	Shell bool
}

// Apply applies filter and query expressions to a decoded JSON value.
// Filter narrows results (e.g., [?color=='red'])
// Query transforms/selects fields (e.g., [].name)
// If query is $(...), it is run by sh with the filtered JSON on stdin.
func Apply(ctx context.Context, data interface{}, filter, query string) (*Result, error) {
	result := normalize(data)

	if filter != "" {
		filtered, err := search(result, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to apply filter: %w", err)
		}
		result = filtered
	}

	if query == "" {
		return &Result{Data: result}, nil
	}

	if matches := shellPattern.FindStringSubmatch(query); len(matches) > 1 {
		input, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to encode query input: %w", err)
		}
		out, err := executeShellCommand(ctx, string(input), matches[1])
		if err != nil {
			return nil, fmt.Errorf("failed to execute query shell command: %w", err)
		}
		return &Result{Text: out, Shell: true}, nil
	}

	queried, err := search(result, query)
	if err != nil {
		return nil, fmt.Errorf("failed to apply query: %w", err)
	}
	return &Result{Data: queried}, nil
}

// normalize round-trips typed values (structs, named maps) through JSON so
// expressions see the same field names the JSON output shows
func normalize(data interface{}) interface{} {
	switch data.(type) {
	case nil, map[string]interface{}, []interface{}, string, float64, bool:
		return data
	}
	b, err := json.Marshal(data)
	if err != nil {
		return data
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return data
	}
	return out
}

// search applies a JMESPath expression to a decoded JSON value
func search(data interface{}, expression string) (interface{}, error) {
	jp, err := jmespath.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid JMESPath expression '%s': %w", expression, err)
	}

	result, err := jp.Search(data)
	if err != nil {
		return nil, fmt.Errorf("JMESPath search failed: %w", err)
	}

	return result, nil
}

// executeShellCommand executes a shell command with the body piped to stdin
func executeShellCommand(ctx context.Context, body string, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryShellTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdin = strings.NewReader(body)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		errMsg := err.Error()
		if stderr.Len() > 0 {
			errMsg = strings.TrimSpace(stderr.String())
		}
		return "", fmt.Errorf("command '%s' failed: %s", command, errMsg)
	}

	return strings.TrimSpace(stdout.String()), nil
}

// IsValidJMESPath checks if an expression is valid JMESPath syntax
func IsValidJMESPath(expression string) bool {
	_, err := jmespath.Compile(expression)
	return err == nil
}

// IsShellCommand checks if a query is a shell command (starts with $(...))
func IsShellCommand(query string) bool {
	return shellPattern.MatchString(query)
}
