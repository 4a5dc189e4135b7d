package ledger

import "strings"

// PathSeparator joins account names into a full path ("Assets:Bank:Checking").
const PathSeparator = ":"

// SplitPath breaks a colon-delimited account path into trimmed segments.
// An empty or whitespace-only path yields ErrEmptyAccountName; a path with an
// empty segment ("Assets::Bank") is a validation error.
func SplitPath(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrEmptyAccountName
	}
	raw := strings.Split(path, PathSeparator)
	segments := make([]string, 0, len(raw))
	for _, part := range raw {
		name := strings.TrimSpace(part)
		if name == "" {
			return nil, NewValidationError(Issue{
				Code:    CodeEmptyPathSegment,
				Field:   "path",
				Message: "account path '" + path + "' contains empty segments",
			})
		}
		segments = append(segments, name)
	}
	return segments, nil
}

// JoinPath appends name to a parent path. An empty parent path yields name.
func JoinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + PathSeparator + name
}

// NormalizePath re-joins the trimmed segments of path.
func NormalizePath(path string) (string, error) {
	segments, err := SplitPath(path)
	if err != nil {
		return "", err
	}
	return strings.Join(segments, PathSeparator), nil
}

// IsDescendantPath reports whether path lies strictly below ancestor.
func IsDescendantPath(path, ancestor string) bool {
	return strings.HasPrefix(path, ancestor+PathSeparator)
}
