// Package xmlmanifest implements the Manifest codec (spec.md §4.8/§6): XML
// (de)serialization of a Generation, the append-only chain file, and
// structural schema validation for the validate subcommand. spec.md treats
// manifest XML handling as an external collaborator of the core engine; this
// package is that collaborator, kept behind a plain Go-struct API so the
// core packages (session/seal/check/record) never import encoding/xml.
package xmlmanifest

import (
	"encoding/xml"
	"time"

	"github.com/ascmhl/mhl/pkg/mhl/hashformat"
	"github.com/ascmhl/mhl/pkg/mhl/model"
)

const isoLayout = "2006-01-02T15:04:05Z07:00"

// Marshal renders gen as an ASC-MHL-conformant XML document.
func Marshal(gen *model.Generation) ([]byte, error) {
	x := xmlGeneration{
		Version:          schemaVersion,
		GenerationNumber: gen.Number,
		Creator:          toXMLCreatorInfo(gen.Creator),
		Root:             toXMLMediaHash(gen.Root),
	}
	for _, e := range gen.Entries {
		x.Hashes = append(x.Hashes, toXMLMediaHash(e))
	}

	body, err := xml.MarshalIndent(x, "", "  ")
	if err != nil {
		return nil, err
	}
	out := append([]byte(xml.Header), body...)
	return append(out, '\n'), nil
}

// Unmarshal parses an ASC-MHL manifest file's content into a Generation.
func Unmarshal(data []byte) (*model.Generation, error) {
	var x xmlGeneration
	if err := xml.Unmarshal(data, &x); err != nil {
		return nil, &ManifestParseError{Cause: err}
	}

	creator, err := fromXMLCreatorInfo(x.Creator)
	if err != nil {
		return nil, &ManifestParseError{Cause: err}
	}

	root, err := fromXMLMediaHash(x.Root)
	if err != nil {
		return nil, &ManifestParseError{Cause: err}
	}

	gen := &model.Generation{
		Number:  x.GenerationNumber,
		Creator: creator,
		Root:    root,
	}
	for _, xh := range x.Hashes {
		mh, err := fromXMLMediaHash(xh)
		if err != nil {
			return nil, &ManifestParseError{Cause: err}
		}
		gen.Entries = append(gen.Entries, mh)
	}
	return gen, nil
}

func toXMLCreatorInfo(c model.CreatorInfo) xmlCreatorInfo {
	return xmlCreatorInfo{
		Tool:         xmlTool{Name: c.Tool.Name, Version: c.Tool.Version},
		HostName:     c.HostName,
		CreationDate: c.CreationDate.UTC().Format(isoLayout),
		Process:      c.ProcessKind,
	}
}

func fromXMLCreatorInfo(x xmlCreatorInfo) (model.CreatorInfo, error) {
	t, err := time.Parse(isoLayout, x.CreationDate)
	if err != nil {
		return model.CreatorInfo{}, err
	}
	return model.CreatorInfo{
		Tool:         model.Tool{Name: x.Tool.Name, Version: x.Tool.Version},
		HostName:     x.HostName,
		CreationDate: t,
		ProcessKind:  x.Process,
	}, nil
}

func toXMLMediaHash(m model.MediaHash) xmlMediaHash {
	x := xmlMediaHash{
		Path:        m.Path,
		IsDirectory: m.IsDirectory,
	}
	if !m.IsDirectory {
		size := m.Size
		x.Size = &size
		x.LastModificationDate = m.ModTime.UTC().Format(isoLayout)
	}
	for _, e := range m.Hashes {
		x.Hashes = append(x.Hashes, xmlHashValue{Format: string(e.Format), Value: e.Value})
	}
	return x
}

func fromXMLMediaHash(x xmlMediaHash) (model.MediaHash, error) {
	m := model.MediaHash{
		Path:        x.Path,
		IsDirectory: x.IsDirectory,
	}
	if x.Size != nil {
		m.Size = *x.Size
	}
	if x.LastModificationDate != "" {
		t, err := time.Parse(isoLayout, x.LastModificationDate)
		if err != nil {
			return model.MediaHash{}, err
		}
		m.ModTime = t
	}
	for _, xh := range x.Hashes {
		m.Hashes = append(m.Hashes, hashformat.Entry{Format: hashformat.Format(xh.Format), Value: xh.Value})
	}
	return m, nil
}
