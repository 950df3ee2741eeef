package catalog

import (
	"errors"
	"strconv"
	"time"
)

// StageProcess marks a comic that still needs its Process job.
const StageProcess = "process"

// ErrDuplicateFilename reports an insert that collided with an existing comic.
var ErrDuplicateFilename = errors.New("comic filename already exists")

// Comic is a catalog record for one archive file.
type Comic struct {
	ID           int64     `json:"id"`
	Filename     string    `json:"filename"`
	ArchiveType  string    `json:"archive_type"`
	Series       string    `json:"series,omitempty"`
	Number       string    `json:"number,omitempty"`
	Volume       int       `json:"volume,omitempty"`
	Year         int       `json:"year,omitempty"`
	Title        string    `json:"title,omitempty"`
	Publisher    string    `json:"publisher,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	FileHash     string    `json:"file_hash,omitempty"`
	FileSize     int64     `json:"file_size"`
	FileModified time.Time `json:"file_modified,omitzero"`
	PageCount    int       `json:"page_count"`
	ProcessedAt  time.Time `json:"processed_at,omitzero"`
	DeletedAt    time.Time `json:"deleted_at,omitzero"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Deleted reports whether the comic was soft deleted.
func (c Comic) Deleted() bool {
	return !c.DeletedAt.IsZero()
}

// DisplayName renders "Series #Number (Year)" falling back to the filename.
func (c Comic) DisplayName() string {
	if c.Series == "" {
		return c.Filename
	}
	name := c.Series
	if c.Number != "" {
		name += " #" + c.Number
	}
	if c.Year > 0 {
		name += " (" + strconv.Itoa(c.Year) + ")"
	}
	return name
}

// Page is one image entry of a comic archive.
type Page struct {
	ComicID   int64  `json:"comic_id"`
	Index     int    `json:"index"`
	EntryName string `json:"entry_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	FileSize  int64  `json:"file_size"`
	Hash      string `json:"hash"`
	Deleted   bool   `json:"deleted"`
}

// ReadingList is a named, ordered collection of comics.
type ReadingList struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
