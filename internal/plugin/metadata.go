package plugin

import (
	"bufio"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/yuin/gopher-lua/ast"
	"github.com/yuin/gopher-lua/parse"

	"github.com/wardenbot/warden/internal/permission"
	wardenerrors "github.com/wardenbot/warden/pkg/errors"
)

// Plugin sources open with a fixed-format comment header:
//
//	# Plugin: Reminders
//	# Version: 1.2.0
//	# Author: someone
//	# Description: scheduled reminder commands
//	# Dependencies: storage, timeparse
//	# Permissions: moderator
//
// The header ends at the first line that is neither blank nor a '#' line.
// Unrecognized keys are ignored. The rest of the file is Lua and must define
// a global setup function; it is inspected statically and never executed
// during parsing.

const entryPointName = "setup"

// ParseSource extracts metadata from raw plugin source. It returns the
// metadata and the executable body, with header lines blanked out so Lua
// error positions still match the file. A nil error means the plugin is
// structurally sound; the caller decides what state to record otherwise.
func ParseSource(path string, src []byte) (Metadata, string, error) {
	meta := Metadata{
		Name:       pluginNameFromPath(path),
		Permission: permission.LevelUser,
	}

	body, declared, err := splitHeader(string(src))
	if err != nil {
		return meta, body, ErrMalformedMetadata{Plugin: meta.Name, Err: err}
	}

	if v, ok := declared["Plugin"]; ok && v != "" {
		meta.Name = v
	}
	meta.Version = declared["Version"]
	meta.Author = declared["Author"]
	meta.Description = declared["Description"]

	if deps, ok := declared["Dependencies"]; ok {
		meta.Dependencies = splitDependencies(deps)
	}

	if level, ok := declared["Permissions"]; ok {
		parsed, err := permission.ParseLevel(level)
		if err != nil {
			return meta, body, ErrMalformedMetadata{Plugin: meta.Name, Err: err}
		}
		meta.Permission = parsed
	}

	if err := meta.Validate(); err != nil {
		return meta, body, ErrMalformedMetadata{Plugin: meta.Name, Err: err}
	}

	chunk, err := parse.Parse(strings.NewReader(body), path)
	if err != nil {
		return meta, body, ErrMalformedMetadata{Plugin: meta.Name, Err: luaParseError(path, err)}
	}

	if !definesEntryPoint(chunk) {
		return meta, body, ErrMissingEntryPoint{Plugin: meta.Name}
	}

	return meta, body, nil
}

// splitHeader separates the comment header from the executable body. Header
// lines are replaced with empty lines in the returned body.
func splitHeader(src string) (string, map[string]string, error) {
	declared := make(map[string]string)

	var body strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(src))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	inHeader := true
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if inHeader && (trimmed == "" || strings.HasPrefix(trimmed, "#")) {
			if key, value, ok := headerEntry(trimmed); ok {
				declared[key] = value
			}
			body.WriteString("\n")
			continue
		}

		inHeader = false
		body.WriteString(line)
		body.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return body.String(), declared, fmt.Errorf("reading plugin source: %w", err)
	}

	return body.String(), declared, nil
}

// headerEntry parses one '# Key: value' line. Lines that are comments but
// not metadata entries return ok=false and are ignored.
func headerEntry(line string) (string, string, bool) {
	if !strings.HasPrefix(line, "#") {
		return "", "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(line, "#"))

	key, value, found := strings.Cut(rest, ":")
	if !found {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	switch key {
	case "Plugin", "Version", "Author", "Description", "Dependencies", "Permissions":
		return key, strings.TrimSpace(value), true
	default:
		return "", "", false
	}
}

// splitDependencies parses the comma-separated dependency list, trimming and
// deduplicating while preserving declaration order.
func splitDependencies(value string) []string {
	parts := strings.Split(value, ",")
	deps := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		dep := strings.TrimSpace(part)
		if dep == "" {
			continue
		}
		if _, dup := seen[dep]; dup {
			continue
		}
		seen[dep] = struct{}{}
		deps = append(deps, dep)
	}
	if len(deps) == 0 {
		return nil
	}
	return deps
}

// definesEntryPoint walks the top-level statements for a global setup
// function, either 'function setup(...)' or 'setup = function(...)'.
func definesEntryPoint(chunk []ast.Stmt) bool {
	for _, stmt := range chunk {
		switch st := stmt.(type) {
		case *ast.FuncDefStmt:
			if st.Name == nil || st.Name.Func == nil {
				continue
			}
			if ident, ok := st.Name.Func.(*ast.IdentExpr); ok && ident.Value == entryPointName {
				return true
			}
		case *ast.AssignStmt:
			for i, lhs := range st.Lhs {
				ident, ok := lhs.(*ast.IdentExpr)
				if !ok || ident.Value != entryPointName {
					continue
				}
				if i < len(st.Rhs) {
					if _, isFunc := st.Rhs[i].(*ast.FunctionExpr); isFunc {
						return true
					}
				}
			}
		}
	}
	return false
}

// luaParseError attaches line information from a gopher-lua parse failure.
func luaParseError(path string, err error) error {
	if perr, ok := err.(*parse.Error); ok {
		return wardenerrors.NewParseError(path, perr.Pos.Line, err)
	}
	return wardenerrors.NewParseError(path, 0, err)
}

// pluginNameFromPath derives the default plugin name from the file stem.
func pluginNameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
