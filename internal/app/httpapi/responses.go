package httpapi

import (
	"time"

	"github.com/marcelojr/enquetes/internal/domain"
	"github.com/marcelojr/enquetes/internal/platform/ids"
)

const dateLayout = "2006-01-02"

type summaryResponse struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	Active     bool   `json:"active"`
	CreateDate string `json:"create_date"`
}

type pollResponse struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Author     string         `json:"author"`
	Active     bool           `json:"active"`
	CreateDate string         `json:"create_date"`
	MaxVoters  int            `json:"max_voters"`
	Question   string         `json:"question"`
	Options    []string       `json:"options"`
	Data       []int          `json:"data"`
	VoteCount  int            `json:"vote_count"`
	Votes      map[string]int `json:"votes"`
}

type resultResponse struct {
	Label   string  `json:"label"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

type peerResponse struct {
	ID       string `json:"id"`
	Nick     string `json:"nick"`
	JoinedAt string `json:"joined_at,omitempty"`
}

func toPeerResponse(id domain.PeerID, nick string) peerResponse {
	resp := peerResponse{ID: string(id), Nick: nick}
	if at, ok := ids.JoinedAt(id); ok {
		resp.JoinedAt = at.Format(time.RFC3339)
	}
	return resp
}

func toSummaryResponse(s domain.Summary) summaryResponse {
	return summaryResponse{
		ID:         string(s.ID),
		Title:      s.Title,
		Author:     s.Author,
		Active:     s.Active,
		CreateDate: s.CreateDate.Format(dateLayout),
	}
}

// toPollResponse só expõe as alternativas em uso.
func toPollResponse(p domain.Poll) pollResponse {
	n := p.NumberOfOptions
	if n < 2 || n > domain.MaxOptions {
		n = domain.MaxOptions
	}
	resp := pollResponse{
		ID:         string(p.ID()),
		Title:      p.Title,
		Author:     p.Author,
		Active:     p.Active,
		CreateDate: p.CreateDate.Format(dateLayout),
		MaxVoters:  p.MaxVoters,
		Question:   p.Question,
		Options:    append([]string(nil), p.Options[:n]...),
		Data:       append([]int(nil), p.Data[:n]...),
		VoteCount:  p.VoteCount(),
		Votes:      make(map[string]int, len(p.Votes)),
	}
	for voter, choice := range p.Votes {
		resp.Votes[string(voter)] = choice
	}
	return resp
}
