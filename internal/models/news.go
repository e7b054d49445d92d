package models

import "time"

const (
	// ContentTypeNews is the only content kind written today.
	ContentTypeNews = "news"
	// SourceNaverAPI identifies records produced from the Naver news search API.
	SourceNaverAPI = "naver_api"
)

// NewsItem is the normalized record persisted by the collector. Records are
// write-once; nothing updates a stored item.
type NewsItem struct {
	UID          string    `json:"uid"`
	ID           string    `json:"id"`
	Keyword      string    `json:"keyword"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	OriginalLink string    `json:"originallink"`
	Link         string    `json:"link"`
	PubDate      string    `json:"pubDate"`
	ImageURL     *string   `json:"image_url"`
	CDNImageURL  *string   `json:"cdn_image_url"`
	CollectedAt  time.Time `json:"collected_at"`
	ContentType  string    `json:"content_type"`
	Source       string    `json:"source"`
}
