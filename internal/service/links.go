package service

import (
	"net/url"
	"strings"
)

// MaxImageDataURLBytes caps profile images sent inline as data URLs. The
// users document is one file, so every inline image is paid for on every
// load.
const MaxImageDataURLBytes = 2 << 20

// IsValidURL reports whether s is an absolute http or https URL.
func IsValidURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// CleanDriveLink rewrites a Google Drive share link into a direct download
// link. Anything else is returned unchanged.
//
//	https://drive.google.com/file/d/<id>/view?usp=sharing
//	  → https://drive.google.com/uc?export=download&id=<id>
func CleanDriveLink(link string) string {
	if !strings.Contains(link, "drive.google.com") {
		return link
	}

	if _, rest, ok := strings.Cut(link, "/file/d/"); ok {
		id := rest
		if i := strings.IndexAny(id, "/?#"); i >= 0 {
			id = id[:i]
		}
		if id != "" {
			return "https://drive.google.com/uc?export=download&id=" + url.QueryEscape(id)
		}
	}

	// Share links that went through a redirect arrive with the query
	// escaped into the path.
	if strings.Contains(link, "%3F0%3Dsharing") {
		return strings.Replace(link, "%3F0%3Dsharing", "?export=download", 1)
	}

	return link
}

// validImage accepts an empty image, an http(s) URL or an inline image data
// URL no larger than MaxImageDataURLBytes.
func validImage(image string) bool {
	switch {
	case image == "":
		return true
	case strings.HasPrefix(image, "data:image/"):
		return len(image) <= MaxImageDataURLBytes
	default:
		return IsValidURL(image)
	}
}
