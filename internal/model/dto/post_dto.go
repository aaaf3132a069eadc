package dto

// CreatePostRequest 创建文章请求
type CreatePostRequest struct {
	Title   string `json:"title" binding:"required,max=200"`
	Slug    string `json:"slug" binding:"required,max=200"`
	Summary string `json:"summary"`
	Content string `json:"content" binding:"required"`
}

// PostDetail 文章详情
type PostDetail struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Summary     string `json:"summary"`
	Content     string `json:"content"`
	Status      string `json:"status"`
	PublishedAt string `json:"published_at,omitempty"`
}

// SearchHit 搜索结果
type SearchHit struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Slug    string  `json:"slug"`
	Summary string  `json:"summary"`
	Score   float64 `json:"score"`
}
