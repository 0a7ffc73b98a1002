package processors

import (
	"net/url"
	"regexp"
	"strings"

	"videoChat/core"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// IsValidVideoID reports whether id has the shape of a YouTube video id.
func IsValidVideoID(id string) bool {
	return videoIDPattern.MatchString(id)
}

// ExtractVideoID pulls the video id out of a watch, short, embed or share
// link. The scheme may be omitted.
func ExtractVideoID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", core.InvalidInput("video url is required")
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", core.InvalidInput("invalid video url %q", raw)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	var candidate string
	switch host {
	case "youtu.be":
		candidate = firstPathSegment(u.Path)
	case "youtube.com", "m.youtube.com", "music.youtube.com", "youtube-nocookie.com":
		if v := u.Query().Get("v"); v != "" {
			candidate = v
			break
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) >= 2 {
			switch parts[0] {
			case "embed", "v", "e", "shorts", "live":
				candidate = parts[1]
			}
		}
	default:
		return "", core.InvalidInput("not a YouTube url: %q", raw)
	}

	if !IsValidVideoID(candidate) {
		return "", core.InvalidInput("no video id found in %q", raw)
	}
	return candidate, nil
}

func firstPathSegment(p string) string {
	p = strings.Trim(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return p
}
