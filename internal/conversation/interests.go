package conversation

import (
	"context"
	"sort"
	"strings"
)

// interestTopics is the fixed keyword table scanned against stored
// message text. Matching is plain case-insensitive substring search —
// deliberately coarse, the signal only seasons the generation context.
var interestTopics = map[string][]string{
	"true crime":       {"true crime", "crime", "investigation", "murder", "detective"},
	"technology":       {"tech", "software", "programming", "ai ", "startup", "gadget"},
	"comedy":           {"comedy", "funny", "humor", "stand-up", "standup"},
	"history":          {"history", "historical", "ancient", "war ", "empire"},
	"business":         {"business", "entrepreneur", "finance", "invest", "economy"},
	"science":          {"science", "physics", "biology", "space", "research study"},
	"sports":           {"sports", "football", "basketball", "soccer", "baseball"},
	"politics":         {"politics", "election", "policy", "government"},
	"health":           {"health", "fitness", "wellness", "nutrition", "mental health"},
	"storytelling":     {"storytelling", "narrative", "documentary", "audio drama"},
	"interviews":       {"interview", "conversation with", "guest"},
	"news":             {"news", "current events", "daily briefing"},
	"music":            {"music", "album", "musician", "band "},
	"film and tv":      {"movie", "film", "tv show", "series", "cinema"},
	"self-improvement": {"productivity", "self-improvement", "habits", "motivation"},
}

// maxInterestMessages bounds how much history the interest scan reads.
const maxInterestMessages = 200

// DetectInterests scans text for topic keywords and returns the matched
// topics sorted alphabetically for stable output.
func DetectInterests(text string) []string {
	lowered := strings.ToLower(text)

	var topics []string
	for topic, keywords := range interestTopics {
		for _, kw := range keywords {
			if strings.Contains(lowered, kw) {
				topics = append(topics, topic)
				break
			}
		}
	}
	sort.Strings(topics)
	return topics
}

// InterestsSummary derives the free-text long-term-memory digest for a
// user from their recent stored messages. Empty string when nothing
// matched — the generation prompt simply omits the section then.
func (s *Store) InterestsSummary(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", ErrAuthRequired
	}

	rows, err := s.db.Query(ctx,
		`SELECT m.content
		 FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE c.user_id = $1 AND m.role = $2
		 ORDER BY m.timestamp DESC
		 LIMIT $3`,
		userID, RoleUser, maxInterestMessages,
	)
	if err != nil {
		return "", persistErr("interest scan", err)
	}
	defer rows.Close()

	var sb strings.Builder
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return "", persistErr("interest scan", err)
		}
		sb.WriteString(content)
		sb.WriteByte('\n')
	}
	if err := rows.Err(); err != nil {
		return "", persistErr("interest scan", err)
	}

	topics := DetectInterests(sb.String())
	if len(topics) == 0 {
		return "", nil
	}
	return "The listener has previously shown interest in: " + strings.Join(topics, ", ") + ".", nil
}
