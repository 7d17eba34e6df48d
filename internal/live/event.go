package live

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type Kind string

const (
	KindLike Kind = "like"
	KindView Kind = "view"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindLike, KindView:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown counter kind %q", s)
	}
}

// Event carries a freshly counted value for one article.
type Event struct {
	ArticleID uuid.UUID
	Kind      Kind
	Count     int64
}

type likePayload struct {
	LikeCount int64 `json:"likeCount"`
}

type viewPayload struct {
	ViewCount int64 `json:"viewCount"`
}

// Payload is the JSON body delivered to browsers: {"likeCount":n} or {"viewCount":n}.
func (e Event) Payload() ([]byte, error) {
	switch e.Kind {
	case KindLike:
		return json.Marshal(likePayload{LikeCount: e.Count})
	case KindView:
		return json.Marshal(viewPayload{ViewCount: e.Count})
	default:
		return nil, fmt.Errorf("unknown counter kind %q", e.Kind)
	}
}
