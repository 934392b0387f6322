package bot

import (
	"fmt"
	"strconv"
	"strings"

	"creator_ingest/internal/model"
)

// FilterArgs holds the parsed arguments of a filter command.
type FilterArgs struct {
	URLID int64
	Scope model.FilterScope
	Value string
}

// ParseFilterCommand parses arguments for /include, /exclude, etc.
// Format: <url_id> [-s title|content|all] <value...>
func ParseFilterCommand(args string) (FilterArgs, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return FilterArgs{}, fmt.Errorf("usage: <url_id> [-s title|content|all] <value>")
	}

	urlID, err := strconv.ParseInt(strings.TrimPrefix(parts[0], "U"), 10, 64)
	if err != nil {
		return FilterArgs{}, fmt.Errorf("invalid URL ID %q", parts[0])
	}

	scope := model.ScopeAll
	rest := parts[1:]

	if len(rest) >= 2 && rest[0] == "-s" {
		switch rest[1] {
		case "title":
			scope = model.ScopeTitle
		case "content":
			scope = model.ScopeContent
		case "all":
			scope = model.ScopeAll
		default:
			return FilterArgs{}, fmt.Errorf("invalid scope %q, use: title, content, all", rest[1])
		}
		rest = rest[2:]
	}

	if len(rest) == 0 {
		return FilterArgs{}, fmt.Errorf("filter value is required")
	}

	return FilterArgs{
		URLID: urlID,
		Scope: scope,
		Value: strings.Join(rest, " "),
	}, nil
}

// ParseIDArg extracts a numeric URL or filter ID. A leading "U" or "F" as
// shown in listings is accepted.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("ID is required")
	}
	first := strings.TrimLeft(strings.Fields(s)[0], "UF")
	id, err := strconv.ParseInt(first, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ID %q", s)
	}
	return id, nil
}

// ParseCreatorArg extracts a creator ID from command arguments.
func ParseCreatorArg(args string) (string, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return "", fmt.Errorf("creator ID is required")
	}
	return parts[0], nil
}

// ParseRenameArgs extracts a creator ID and new name from command arguments.
func ParseRenameArgs(args string) (string, string, error) {
	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if len(parts) < 2 || parts[0] == "" {
		return "", "", fmt.Errorf("usage: /rename <creator_id> <new_name>")
	}
	name := strings.TrimSpace(parts[1])
	if name == "" {
		return "", "", fmt.Errorf("new name cannot be empty")
	}
	return parts[0], name, nil
}

// ParseAddArgs splits "/add <url> [name...]".
func ParseAddArgs(args string) (string, string, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return "", "", fmt.Errorf("usage: /add <url> [name]")
	}
	return parts[0], strings.Join(parts[1:], " "), nil
}

// ParseAddURLArgs splits "/addurl <creator_id> <url>".
func ParseAddURLArgs(args string) (string, string, error) {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("usage: /addurl <creator_id> <url>")
	}
	return parts[0], parts[1], nil
}
