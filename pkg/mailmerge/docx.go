package mailmerge

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

const mainPart = "word/document.xml"

// Relationship types of the parts that carry paragraphs.
const (
	relTypeHeader    = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/header"
	relTypeFooter    = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/footer"
	relTypeFootnotes = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/footnotes"
	relTypeEndnotes  = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/endnotes"
)

// DocxReader handles reading DOCX packages
type DocxReader struct {
	reader *zip.Reader
	Parts  map[string]*zip.File
}

// Relationship represents a relationship in the DOCX package
type Relationship struct {
	ID         string `xml:"Id,attr"`
	Type       string `xml:"Type,attr"`
	Target     string `xml:"Target,attr"`
	TargetMode string `xml:"TargetMode,attr,omitempty"`
}

// Relationships represents the collection of relationships
type Relationships struct {
	XMLName      xml.Name       `xml:"Relationships"`
	Relationship []Relationship `xml:"Relationship"`
}

// NewDocxReader creates a new DOCX reader
func NewDocxReader(r io.ReaderAt, size int64) (*DocxReader, error) {
	zipReader, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to read zip file: %w", err)
	}

	dr := &DocxReader{
		reader: zipReader,
		Parts:  make(map[string]*zip.File),
	}
	for _, file := range zipReader.File {
		dr.Parts[file.Name] = file
	}

	if _, ok := dr.Parts[mainPart]; !ok {
		return nil, fmt.Errorf("not a valid DOCX file: missing %s", mainPart)
	}

	return dr, nil
}

// DocxReaderFromFile creates a DocxReader from a file path
func DocxReaderFromFile(path string) (*DocxReader, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return NewDocxReader(bytes.NewReader(content), int64(len(content)))
}

// Files returns the package entries in archive order.
func (dr *DocxReader) Files() []*zip.File {
	return dr.reader.File
}

// GetPart retrieves the content of a specific part
func (dr *DocxReader) GetPart(partName string) ([]byte, error) {
	file, ok := dr.Parts[partName]
	if !ok {
		return nil, fmt.Errorf("part %s not found", partName)
	}
	return readZipFile(file)
}

func readZipFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open part %s: %w", file.Name, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read part %s: %w", file.Name, err)
	}
	return content, nil
}

// GetRelationships retrieves relationships for a given part
func (dr *DocxReader) GetRelationships(partName string) ([]Relationship, error) {
	dir, base := path.Split(partName)
	relPath := dir + "_rels/" + base + ".rels"

	file, ok := dr.Parts[relPath]
	if !ok {
		// A part without relationships is valid.
		return nil, nil
	}

	content, err := readZipFile(file)
	if err != nil {
		return nil, err
	}

	var rels Relationships
	if err := xml.Unmarshal(content, &rels); err != nil {
		return nil, fmt.Errorf("failed to parse relationships: %w", err)
	}
	return rels.Relationship, nil
}

// TextParts returns the names of the parts holding paragraphs: the main
// document first, then headers, footers, footnotes and endnotes referenced
// from it, in relationship order.
func (dr *DocxReader) TextParts() ([]string, error) {
	rels, err := dr.GetRelationships(mainPart)
	if err != nil {
		return nil, err
	}

	names := []string{mainPart}
	seen := map[string]bool{mainPart: true}
	for _, rel := range rels {
		switch rel.Type {
		case relTypeHeader, relTypeFooter, relTypeFootnotes, relTypeEndnotes:
		default:
			continue
		}
		if strings.EqualFold(rel.TargetMode, "External") {
			continue
		}
		name := resolveTarget(path.Dir(mainPart), rel.Target)
		if seen[name] {
			continue
		}
		if _, ok := dr.Parts[name]; !ok {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}

// resolveTarget resolves a relationship target against the source part's
// directory. Targets starting with "/" are package-absolute.
func resolveTarget(dir, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(path.Clean(target), "/")
	}
	return path.Clean(path.Join(dir, target))
}
