package archive

import (
	"fmt"
	"path"
	"strings"
)

// ComicInfoName is the conventional metadata entry name.
const ComicInfoName = "ComicInfo.xml"

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".bmp": {},
}

// Entry is one archive member.
type Entry struct {
	Name string
	Data []byte
}

// Contents is a fully loaded archive.
type Contents struct {
	Pages    []Entry
	Metadata *ComicInfo
	Extra    []Entry
}

// SaveOptions controls how Contents are written.
type SaveOptions struct {
	// RenamePages stores pages as 001.ext, 002.ext, ... in reading order.
	RenamePages bool
}

// IsImage reports whether name looks like a page image.
func IsImage(name string) bool {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if strings.HasPrefix(base, ".") || strings.HasPrefix(name, "__MACOSX/") {
		return false
	}
	_, ok := imageExtensions[strings.ToLower(path.Ext(base))]
	return ok
}

func isComicInfo(name string) bool {
	return strings.EqualFold(path.Base(strings.ReplaceAll(name, "\\", "/")), ComicInfoName)
}

// PageNames returns the names the pages get when saved with opts.
func (c *Contents) PageNames(opts SaveOptions) []string {
	names := make([]string, len(c.Pages))
	width := len(fmt.Sprint(len(c.Pages)))
	if width < 3 {
		width = 3
	}
	for i, p := range c.Pages {
		if opts.RenamePages {
			names[i] = fmt.Sprintf("%0*d%s", width, i+1, strings.ToLower(path.Ext(p.Name)))
			continue
		}
		names[i] = p.Name
	}
	return names
}

// Without returns a copy of c minus the pages whose names are in drop.
func (c *Contents) Without(drop map[string]bool) *Contents {
	out := &Contents{Metadata: c.Metadata, Extra: c.Extra}
	for _, p := range c.Pages {
		if !drop[p.Name] {
			out.Pages = append(out.Pages, p)
		}
	}
	return out
}
