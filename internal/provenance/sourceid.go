package provenance

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/kestrellabs/ctxfusion/internal/memory"
)

// deriveSourceID computes a deterministic source_id per the source_kind
// format table. It never returns an empty string.
func deriveSourceID(c memory.Chunk) string {
	md := c.Metadata
	switch md.SourceKind {
	case memory.SourceRepoFile:
		if md.Repository == "" && md.Path == "" {
			break
		}
		id := fmt.Sprintf("repo:%s/%s", md.Repository, md.Path)
		if h := shortHash(c.Content); h != "" && md.Path == "" {
			id = fmt.Sprintf("%s#%s", id, h)
		}
		return id
	case memory.SourceConversation:
		if md.ConversationID == "" {
			break
		}
		if c.ID != "" {
			return fmt.Sprintf("conversation:%s#%s", md.ConversationID, c.ID)
		}
		return fmt.Sprintf("conversation:%s", md.ConversationID)
	case memory.SourceWeb:
		if md.URL == "" {
			break
		}
		return fmt.Sprintf("url:%s", md.URL)
	case memory.SourcePDF:
		if md.Path == "" {
			break
		}
		if page, ok := md.Extra["page"]; ok && page != "" {
			return fmt.Sprintf("pdf:%s#page%s", md.Path, page)
		}
		return fmt.Sprintf("pdf:%s", md.Path)
	case memory.SourceEmail:
		if id := md.Extra["message_id"]; id != "" {
			return fmt.Sprintf("email:%s", id)
		}
	case memory.SourceNote:
		if id := md.Extra["note_id"]; id != "" {
			return fmt.Sprintf("note:%s", id)
		}
		return fmt.Sprintf("note:%s", shortHash(c.Content))
	}
	return fmt.Sprintf("unknown:%s", sha256_16(c.Content, c.ID, string(md.ChunkType), md.Timestamp.String()))
}

// shortHash returns a short deterministic fragment used when a natural key
// is otherwise ambiguous (e.g. a repo file without a path).
func shortHash(s string) string {
	if s == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}

// sha256_16 hashes the pipe-joined inputs and returns 16 hex characters,
// the fallback identity used when nothing else distinguishes a chunk.
func sha256_16(parts ...string) string {
	joined := ""
	for i, p := range parts {
		if i > 0 {
			joined += "|"
		}
		joined += p
	}
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])[:16]
}
