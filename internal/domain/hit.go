package domain

// Hit is a single text retrieval result. Score is 1 - cosine distance,
// so it spans [-1, 1] and is passed through unclamped; higher is closer.
type Hit struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// ImageHit is a single image retrieval result from the shared image collection.
type ImageHit struct {
	ImagePath   string  `json:"image_path"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}
