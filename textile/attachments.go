package textile

import "strings"

// resolveAttachment maps a macro filename to its stored relative path.
// Exact match wins; a case-insensitive scan is the fallback because some
// trackers normalize filename case on upload.
func (s *state) resolveAttachment(filename string) (string, bool) {
	if path, ok := s.attachments[filename]; ok {
		return path, true
	}
	for name, path := range s.attachments {
		if strings.EqualFold(name, filename) {
			return path, true
		}
	}
	return "", false
}

// markUnresolved records a filename that no map entry covers, once per
// conversion regardless of how often the macro repeats.
func (s *state) markUnresolved(filename string) {
	if _, dup := s.seen[filename]; dup {
		return
	}
	s.seen[filename] = struct{}{}
	s.unresolved = append(s.unresolved, filename)
	s.addWarning(WarningUnresolvedAttachment, filename, "attachment macro has no map entry; macro kept literal")
}
