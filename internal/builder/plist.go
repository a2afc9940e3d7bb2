package builder

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"strings"
)

// PlistEdit replaces the first <string>Placeholder</string> in an
// Info.plist with Value. Field names the plist key for reporting.
type PlistEdit struct {
	Field       string
	Placeholder string
	Value       string
}

// PatchPlist applies edits to the plist at path and returns the fields whose
// placeholder was not found. The file is only rewritten when something was
// replaced.
func PatchPlist(path string, edits []PlistEdit) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat plist: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plist: %w", err)
	}

	content := string(data)
	var missing []string
	for _, e := range edits {
		token := "<string>" + e.Placeholder + "</string>"
		if !strings.Contains(content, token) {
			missing = append(missing, e.Field)
			continue
		}
		content = strings.Replace(content, token, "<string>"+escapeXML(e.Value)+"</string>", 1)
	}

	if content == string(data) {
		return missing, nil
	}
	if err := os.WriteFile(path, []byte(content), info.Mode().Perm()); err != nil {
		return nil, fmt.Errorf("write plist: %w", err)
	}
	return missing, nil
}

func escapeXML(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
