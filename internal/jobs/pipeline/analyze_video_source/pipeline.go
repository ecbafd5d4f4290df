package analyze_video_source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	"github.com/yungbote/hypermind-backend/internal/jobs/llmjson"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/jobs/study/steps"
)

const (
	defaultMaxResults = 10
	transcriptLimit   = 15000
	excerptLimit      = 3000
	summaryLimit      = 10000
)

const rankSystem = `You are an expert educational content evaluator. Analyze YouTube videos and rank them based on:
1. INFORMATION DENSITY (0-10)
2. CLARITY (0-10)
3. ACCURACY (0-10)
4. ENGAGEMENT (0-10)

Return ONLY valid JSON.`

type candidate struct {
	adapters.Video
	Transcript    string `json:"transcript"`
	HasTranscript bool   `json:"hasTranscript"`
}

type Scores struct {
	InformationDensity float64 `json:"informationDensity"`
	Clarity            float64 `json:"clarity"`
	Accuracy           float64 `json:"accuracy"`
	Engagement         float64 `json:"engagement"`
}

type Ranking struct {
	VideoIndex int     `json:"videoIndex"`
	Scores     Scores  `json:"scores"`
	TotalScore float64 `json:"totalScore"`
}

type winner struct {
	VideoIndex        int      `json:"videoIndex"`
	WhyItWon          string   `json:"whyItWon"`
	MissingFromOthers []string `json:"missingFromOthers"`
}

// ranked is the model verdict. Indexes are 1-based over Candidates, which
// maps them back to positions in the fetched list.
type ranked struct {
	Rankings   []Ranking `json:"rankings"`
	Winner     *winner   `json:"winner"`
	Reason     string    `json:"reason,omitempty"`
	Candidates []int     `json:"candidates"`
}

type Winner struct {
	VideoID           string   `json:"videoId"`
	Title             string   `json:"title"`
	ChannelTitle      string   `json:"channelTitle"`
	URL               string   `json:"url"`
	EmbedURL          string   `json:"embedUrl"`
	WhyItWon          string   `json:"whyItWon"`
	MissingFromOthers []string `json:"missingFromOthers"`
	Summary           string   `json:"summary"`
	Scores            *Scores  `json:"scores,omitempty"`
}

type Result struct {
	SessionID           string    `json:"sessionId"`
	UserID              string    `json:"userId,omitempty"`
	Query               string    `json:"query"`
	Found               bool      `json:"found"`
	Error               string    `json:"error,omitempty"`
	Winner              *Winner   `json:"winner"`
	AllRankings         []Ranking `json:"allRankings,omitempty"`
	TotalVideosAnalyzed int       `json:"totalVideosAnalyzed"`
}

func (p *Pipeline) searchVideos(ctx context.Context, in jobrt.StepInput) (any, error) {
	query, err := in.Event.Require("query")
	if err != nil {
		return nil, err
	}
	if p.videos == nil {
		return nil, adapters.Missing("video-search")
	}
	max := in.Event.Int("maxResults", defaultMaxResults)
	if max <= 0 {
		max = defaultMaxResults
	}
	videos, err := p.videos.SearchVideos(ctx, query, max)
	if err != nil {
		return nil, err
	}
	if videos == nil {
		videos = []adapters.Video{}
	}
	p.log.Info("video search done", "query", query, "results", len(videos))
	return videos, nil
}

func (p *Pipeline) fetchTranscripts(ctx context.Context, in jobrt.StepInput) (any, error) {
	var videos []adapters.Video
	if err := in.Prior.Decode("search-videos", &videos); err != nil {
		return nil, err
	}
	out := make([]candidate, len(videos))
	if len(videos) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, p.fetchConcurrency))
	for i, v := range videos {
		g.Go(func() error {
			text, err := p.videos.Transcript(gctx, v.ID)
			if err != nil {
				if errors.Is(err, context.Canceled) || gctx.Err() != nil {
					return err
				}
				// A missing transcript only drops the video from ranking.
				p.log.Warn("transcript unavailable", "video_id", v.ID, "error", err)
				text = ""
			}
			text = strings.TrimSpace(text)
			out[i] = candidate{Video: v, Transcript: steps.Truncate(text, transcriptLimit), HasTranscript: text != ""}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) rank(ctx context.Context, in jobrt.StepInput) (any, error) {
	var cands []candidate
	if err := in.Prior.Decode("fetch-transcripts", &cands); err != nil {
		return nil, err
	}
	out := ranked{Candidates: []int{}}
	var b strings.Builder
	for i, c := range cands {
		if !c.HasTranscript {
			continue
		}
		out.Candidates = append(out.Candidates, i)
		fmt.Fprintf(&b, "\nVIDEO %d: %q by %s\nTranscript excerpt: %s\n---\n",
			len(out.Candidates), c.Title, c.Channel, steps.Truncate(c.Transcript, excerptLimit))
	}
	if len(out.Candidates) == 0 {
		out.Reason = "No transcripts available"
		return out, nil
	}

	prompt := fmt.Sprintf(`Compare these videos about %q and determine the SINGLE BEST one.
%s
Return JSON:
{
  "rankings": [
    {
      "videoIndex": 1,
      "scores": { "informationDensity": 8, "clarity": 9, "accuracy": 8, "engagement": 7 },
      "totalScore": 32
    }
  ],
  "winner": {
    "videoIndex": 1,
    "whyItWon": "Detailed explanation",
    "missingFromOthers": ["Topics covered only in winning video"]
  }
}`, in.Event.String("query"), b.String())

	reply, err := steps.Ask(ctx, p.ai, adapters.HintContext, rankSystem, prompt, adapters.CompletionOptions{MaxTokens: 4000})
	if err != nil {
		return nil, err
	}
	verdict, ok := llmjson.Object(reply, ranked{})
	if !ok {
		out.Reason = "Failed to parse rankings"
		return out, nil
	}
	out.Rankings, out.Winner = verdict.Rankings, verdict.Winner
	if out.Winner != nil && (out.Winner.VideoIndex < 1 || out.Winner.VideoIndex > len(out.Candidates)) {
		p.log.Warn("winner index out of range", "index", out.Winner.VideoIndex, "candidates", len(out.Candidates))
		out.Winner = nil
		out.Reason = "Could not determine a winner"
	}
	return out, nil
}

func (p *Pipeline) prepareResult(ctx context.Context, in jobrt.StepInput) (any, error) {
	var (
		cands   []candidate
		verdict ranked
	)
	if err := in.Prior.Decode("fetch-transcripts", &cands); err != nil {
		return nil, err
	}
	if err := in.Prior.Decode("rank-and-select-best-result", &verdict); err != nil {
		return nil, err
	}
	res := Result{
		SessionID:           in.Event.String("sessionId"),
		UserID:              in.Event.String("userId"),
		Query:               in.Event.String("query"),
		TotalVideosAnalyzed: len(cands),
	}
	if len(cands) == 0 {
		res.Error = "No videos found for this query"
		return res, nil
	}
	if verdict.Winner == nil {
		res.Error = verdict.Reason
		if res.Error == "" {
			res.Error = "Could not determine a winner"
		}
		return res, nil
	}

	best := cands[verdict.Candidates[verdict.Winner.VideoIndex-1]]
	summary, err := steps.Ask(ctx, p.ai, adapters.HintContext, "You are an expert at summarizing educational content.",
		`Create a comprehensive study summary of this video transcript. Include:
1. Main concepts covered
2. Key takeaways (bullet points)
3. Recommended follow-up topics

Transcript:
`+steps.Truncate(best.Transcript, summaryLimit), adapters.CompletionOptions{MaxTokens: 2000})
	if err != nil {
		return nil, err
	}
	w := &Winner{
		VideoID:           best.ID,
		Title:             best.Title,
		ChannelTitle:      best.Channel,
		URL:               best.URL,
		EmbedURL:          "https://www.youtube.com/embed/" + best.ID,
		WhyItWon:          verdict.Winner.WhyItWon,
		MissingFromOthers: verdict.Winner.MissingFromOthers,
		Summary:           summary,
	}
	for i := range verdict.Rankings {
		if verdict.Rankings[i].VideoIndex == verdict.Winner.VideoIndex {
			s := verdict.Rankings[i].Scores
			w.Scores = &s
			break
		}
	}
	res.Found = true
	res.Winner = w
	res.AllRankings = verdict.Rankings
	return res, nil
}
