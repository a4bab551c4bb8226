package xmlmanifest

import "encoding/xml"

// These types mirror the ASC MHL XML schema's element set closely enough to
// round-trip a Generation; they are the one intentional standard-library
// seam in this module (see DESIGN.md) since no XML library of any kind
// appears anywhere in the example corpus.

type xmlHashValue struct {
	Format string `xml:"format,attr"`
	Value  string `xml:",chardata"`
}

type xmlTool struct {
	Name    string `xml:"name"`
	Version string `xml:"version"`
}

type xmlCreatorInfo struct {
	Tool         xmlTool `xml:"tool"`
	HostName     string  `xml:"hostname"`
	CreationDate string  `xml:"creationdate"`
	Process      string  `xml:"process"`
}

type xmlMediaHash struct {
	Path                 string         `xml:"path"`
	IsDirectory          bool           `xml:"isdirectory,omitempty"`
	Size                 *int64         `xml:"size,omitempty"`
	LastModificationDate string         `xml:"lastmodificationdate,omitempty"`
	Hashes               []xmlHashValue `xml:"hashvalue,omitempty"`
}

type xmlGeneration struct {
	XMLName          xml.Name       `xml:"hashlist"`
	Version          string         `xml:"version,attr"`
	GenerationNumber int            `xml:"generationnumber,attr"`
	Creator          xmlCreatorInfo `xml:"creatorinfo"`
	Root             xmlMediaHash   `xml:"roothash"`
	Hashes           []xmlMediaHash `xml:"hash"`
}

const schemaVersion = "2.0"
