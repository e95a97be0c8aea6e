package todo

// Item is one entry of the signed-in user's todo list.
type Item struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// NewItem is the creation payload.
type NewItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}
