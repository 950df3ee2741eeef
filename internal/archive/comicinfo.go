package archive

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// ComicInfo is the subset of the ComicRack metadata schema the catalog keeps.
type ComicInfo struct {
	XMLName   xml.Name `xml:"ComicInfo"`
	Title     string   `xml:"Title,omitempty"`
	Series    string   `xml:"Series,omitempty"`
	Number    string   `xml:"Number,omitempty"`
	Volume    int      `xml:"Volume,omitempty"`
	Year      int      `xml:"Year,omitempty"`
	Publisher string   `xml:"Publisher,omitempty"`
	Summary   string   `xml:"Summary,omitempty"`
	PageCount int      `xml:"PageCount,omitempty"`
}

// ParseComicInfo decodes a ComicInfo.xml document.
func ParseComicInfo(data []byte) (*ComicInfo, error) {
	var info ComicInfo
	if err := xml.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ComicInfoName, err)
	}
	return &info, nil
}

// Marshal encodes info with an XML declaration.
func (info *ComicInfo) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(info); err != nil {
		return nil, fmt.Errorf("encode %s: %w", ComicInfoName, err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
