package xmlmanifest

import (
	"fmt"
	"os"
)

// ValidateSchema backs the `validate` subcommand. spec.md's source tool
// (original_source/mhl/commands.py) validates against a full XSD via
// lxml.etree.XMLSchema; no XSD engine exists anywhere in this module's
// source corpus (see DESIGN.md), so this performs structural validation
// against the manifest's Go representation instead: the file must parse as
// an ASC MHL document and carry the elements a manifest cannot do without.
func ValidateSchema(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	gen, err := Unmarshal(data)
	if err != nil {
		return &SchemaValidationFailure{Path: path, Issues: []string{err.Error()}}
	}

	var issues []string
	if gen.Creator.Tool.Name == "" {
		issues = append(issues, "creatorinfo/tool/name is required")
	}
	if gen.Creator.HostName == "" {
		issues = append(issues, "creatorinfo/hostname is required")
	}
	if gen.Creator.CreationDate.IsZero() {
		issues = append(issues, "creatorinfo/creationdate is required")
	}
	if gen.Creator.ProcessKind == "" {
		issues = append(issues, "creatorinfo/process is required")
	}
	if gen.Number < 1 {
		issues = append(issues, "generationnumber must be >= 1")
	}
	if gen.Root.Path == "" {
		issues = append(issues, "roothash/path is required")
	}
	for i, e := range gen.Entries {
		if e.Path == "" {
			issues = append(issues, fmt.Sprintf("hash[%d]/path is required", i))
		}
		if !e.IsDirectory && len(e.Hashes) == 0 {
			issues = append(issues, fmt.Sprintf("hash[%d] (%s) carries no hash value", i, e.Path))
		}
	}

	if len(issues) > 0 {
		return &SchemaValidationFailure{Path: path, Issues: issues}
	}
	return nil
}
