package ssaid

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
)

// Entry is one element of the identifier store: a per-package assignment
// plus the bookkeeping attributes the platform writes alongside.
type Entry struct {
	ID            int
	Name          string
	Value         string
	Package       string
	DefaultValue  string
	DefaultSysSet string
}

// StoreFormatState describes the store format for one read-modify-write
// cycle. Version is reproduced verbatim on write so the platform never sees
// a schema change it did not make itself.
type StoreFormatState struct {
	Encoding Encoding
	Version  string
}

// newStoreVersion is the schema version written to stores created from
// scratch. The platform treats negative versions as unspecified.
const newStoreVersion = "-1"

// xmlDeclaration matches what the platform serializer emits.
const xmlDeclaration = "<?xml version='1.0' encoding='utf-8' standalone='yes' ?>\n"

type xmlStore struct {
	XMLName  xml.Name     `xml:"settings"`
	Version  string       `xml:"version,attr"`
	Settings []xmlSetting `xml:"setting"`
}

type xmlSetting struct {
	ID            string `xml:"id,attr"`
	Name          string `xml:"name,attr"`
	Value         string `xml:"value,attr"`
	Package       string `xml:"package,attr"`
	DefaultValue  string `xml:"defaultValue,attr"`
	DefaultSysSet string `xml:"defaultSysSet,attr"`
}

// parseStore decodes the text form of the store into entries and the
// declared schema version.
func parseStore(raw []byte) ([]Entry, string, error) {
	var x xmlStore
	if err := xml.Unmarshal(raw, &x); err != nil {
		return nil, "", fmt.Errorf("parsing identifier store: %w", err)
	}
	version := x.Version
	if version == "" {
		version = newStoreVersion
	}
	entries := make([]Entry, 0, len(x.Settings))
	for _, s := range x.Settings {
		id, err := strconv.Atoi(s.ID)
		if err != nil {
			return nil, "", fmt.Errorf("parsing identifier store: bad id %q", s.ID)
		}
		entries = append(entries, Entry{
			ID:            id,
			Name:          s.Name,
			Value:         s.Value,
			Package:       s.Package,
			DefaultValue:  s.DefaultValue,
			DefaultSysSet: s.DefaultSysSet,
		})
	}
	return entries, version, nil
}

// serializeStore renders entries back to the text form, keeping the given
// schema version and the platform's XML declaration.
func serializeStore(entries []Entry, version string) []byte {
	var b bytes.Buffer
	b.WriteString(xmlDeclaration)
	fmt.Fprintf(&b, "<settings version=\"%s\">\n", escapeAttr(version))
	for _, e := range entries {
		fmt.Fprintf(&b, "  <setting id=\"%d\" name=\"%s\" value=\"%s\" package=\"%s\" defaultValue=\"%s\" defaultSysSet=\"%s\" />\n",
			e.ID, escapeAttr(e.Name), escapeAttr(e.Value), escapeAttr(e.Package),
			escapeAttr(e.DefaultValue), escapeAttr(e.DefaultSysSet))
	}
	b.WriteString("</settings>\n")
	return b.Bytes()
}

func escapeAttr(s string) string {
	var b bytes.Buffer
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return s
	}
	return b.String()
}

// upsertEntry sets the identifier for pkg, updating the existing entry in
// place or appending one with the next free id.
func upsertEntry(entries []Entry, pkg, value string) []Entry {
	for i := range entries {
		if entries[i].Name == pkg {
			entries[i].Value = value
			entries[i].DefaultValue = value
			return entries
		}
	}
	maxID := 0
	for _, e := range entries {
		if e.ID > maxID {
			maxID = e.ID
		}
	}
	return append(entries, Entry{
		ID:            maxID + 1,
		Name:          pkg,
		Value:         value,
		Package:       pkg,
		DefaultValue:  value,
		DefaultSysSet: "true",
	})
}

func findEntry(entries []Entry, pkg string) *Entry {
	for i := range entries {
		if entries[i].Name == pkg {
			return &entries[i]
		}
	}
	return nil
}
