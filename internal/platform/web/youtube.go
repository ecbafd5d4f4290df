package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
)

const youtubeService = "youtube"

// YouTube reads search results from the ytInitialData blob embedded in the
// results page and captions from the timedtext endpoint.
type YouTube struct {
	c       *Client
	baseURL string
}

func NewYouTube(c *Client) *YouTube {
	return &YouTube{c: c, baseURL: "https://www.youtube.com"}
}

func (y *YouTube) SearchVideos(ctx context.Context, query string, max int) ([]adapters.Video, error) {
	body, _, err := y.c.get(ctx, youtubeService, y.baseURL+"/results?search_query="+url.QueryEscape(query))
	if err != nil {
		return nil, err
	}
	return parseInitialData(body, max)
}

func (y *YouTube) Transcript(ctx context.Context, videoID string) (string, error) {
	u := y.baseURL + "/api/timedtext?v=" + url.QueryEscape(videoID) + "&lang=en&fmt=json3"
	body, _, err := y.c.get(ctx, youtubeService, u)
	if err != nil {
		if adapters.KindOf(err) == adapters.NotFound {
			return "", nil
		}
		return "", err
	}
	return parseTimedText(body)
}

var initialDataMarkers = [][]byte{[]byte("var ytInitialData = "), []byte(`window["ytInitialData"] = `)}

// parseInitialData streams the blob so results keep page order.
func parseInitialData(page []byte, max int) ([]adapters.Video, error) {
	var raw []byte
	for _, m := range initialDataMarkers {
		if i := bytes.Index(page, m); i >= 0 {
			raw = page[i+len(m):]
			break
		}
	}
	if raw == nil {
		return nil, adapters.Errorf(youtubeService, adapters.InvalidResponse, "ytInitialData not found")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	out := []adapters.Video{}
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			if len(out) == 0 && depth > 0 {
				return nil, adapters.Wrap(youtubeService, adapters.InvalidResponse, err)
			}
			return out, nil
		}
		switch t := tok.(type) {
		case json.Delim:
			if t == '{' || t == '[' {
				depth++
			} else {
				depth--
			}
		case string:
			if t != "videoRenderer" {
				break
			}
			var r map[string]any
			if err := dec.Decode(&r); err != nil {
				return nil, adapters.Wrap(youtubeService, adapters.InvalidResponse, err)
			}
			if v := videoFrom(r); v.ID != "" {
				out = append(out, v)
			}
		}
		if depth == 0 || (max > 0 && len(out) >= max) {
			return out, nil
		}
	}
}

func videoFrom(r map[string]any) adapters.Video {
	id, _ := r["videoId"].(string)
	v := adapters.Video{
		ID:       id,
		Title:    runsText(r["title"]),
		Channel:  runsText(r["ownerText"]),
		Duration: simpleText(r["lengthText"]),
		Views:    simpleText(r["viewCountText"]),
	}
	if id != "" {
		v.URL = "https://www.youtube.com/watch?v=" + id
	}
	if th, ok := r["thumbnail"].(map[string]any); ok {
		if list, ok := th["thumbnails"].([]any); ok && len(list) > 0 {
			if last, ok := list[len(list)-1].(map[string]any); ok {
				v.Thumbnail, _ = last["url"].(string)
			}
		}
	}
	return v
}

func runsText(node any) string {
	m, ok := node.(map[string]any)
	if !ok {
		return ""
	}
	if s, ok := m["simpleText"].(string); ok {
		return s
	}
	runs, _ := m["runs"].([]any)
	var b strings.Builder
	for _, r := range runs {
		if rm, ok := r.(map[string]any); ok {
			s, _ := rm["text"].(string)
			b.WriteString(s)
		}
	}
	return b.String()
}

func simpleText(node any) string { return runsText(node) }

type timedText struct {
	Events []struct {
		Segs []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

// parseTimedText returns "" for an empty body, which is how the endpoint
// answers for videos without English captions.
func parseTimedText(body []byte) (string, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return "", nil
	}
	var tt timedText
	if err := json.Unmarshal(body, &tt); err != nil {
		return "", adapters.Wrap(youtubeService, adapters.InvalidResponse, err)
	}
	var parts []string
	for _, ev := range tt.Events {
		var line strings.Builder
		for _, s := range ev.Segs {
			line.WriteString(s.UTF8)
		}
		if t := strings.TrimSpace(strings.ReplaceAll(line.String(), "\n", " ")); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}
