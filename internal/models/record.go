package models

import (
	"fmt"
	"strconv"
)

// Record is a single backend result before it is rendered into a context line.
// The set of implementations is closed: DocumentHit, ConfigEntry, Rule and Relationship.
type Record interface {
	Backend() Backend
	record()
}

// DocumentHit is a semantic-store match.
type DocumentHit struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
	Reranked   bool    `json:"reranked"`
}

// ConfigEntry is a key/value row from the structured store.
type ConfigEntry struct {
	Key          string `json:"key"`
	Value        string `json:"value"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	MatchKeyword string `json:"match_keyword,omitempty"`
}

// Rule is a condition/action row from the structured store.
type Rule struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Condition    string `json:"condition"`
	Action       string `json:"action"`
	Category     string `json:"category"`
	MatchKeyword string `json:"match_keyword,omitempty"`
}

// Node is an entity in the relationship graph.
type Node struct {
	ID         string            `json:"id"`
	Label      string            `json:"label"`
	Properties map[string]string `json:"properties"`
}

// Relationship is a resolved edge between two graph nodes.
type Relationship struct {
	From       Node              `json:"from"`
	To         Node              `json:"to"`
	Relation   string            `json:"relationship"`
	Properties map[string]string `json:"properties"`
}

// PositionProperty is the node property shown next to entity names in rendered relationships.
const PositionProperty = "职位"

func (DocumentHit) Backend() Backend  { return BackendSemantic }
func (ConfigEntry) Backend() Backend  { return BackendStructured }
func (Rule) Backend() Backend         { return BackendStructured }
func (Relationship) Backend() Backend { return BackendRelational }

func (DocumentHit) record()  {}
func (ConfigEntry) record()  {}
func (Rule) record()         {}
func (Relationship) record() {}

// DedupKey identifies a relationship edge by its endpoints and relation type.
func (r Relationship) DedupKey() string {
	return r.From.ID + "-" + r.Relation + "-" + r.To.ID
}

// Render formats a record as a single context line.
func Render(r Record) string {
	switch rec := r.(type) {
	case DocumentHit:
		mark := ""
		if rec.Reranked {
			mark = "*"
		}
		return fmt.Sprintf("文档: %s (分数: %.3f%s)", rec.Content, rec.Score, mark)
	case ConfigEntry:
		return fmt.Sprintf("配置: %s = %s (%s)", rec.Key, rec.Value, rec.Description)
	case Rule:
		return fmt.Sprintf("规则: %s - %s -> %s", rec.Name, rec.Condition, rec.Action)
	case Relationship:
		return fmt.Sprintf("关系: %s(%s) -[%s]-> %s(%s)",
			rec.From.ID, rec.From.Properties[PositionProperty],
			rec.Relation,
			rec.To.ID, rec.To.Properties[PositionProperty])
	default:
		panic(fmt.Sprintf("models: unhandled record type %T", r))
	}
}

// ToItem converts a record into a RetrievedItem carrying its rendered content.
func ToItem(r Record) RetrievedItem {
	item := RetrievedItem{
		Content: Render(r),
		Source:  r.Backend(),
		Extra:   map[string]string{},
	}
	switch rec := r.(type) {
	case DocumentHit:
		item.RelevanceScore = rec.Score
		item.Extra["document_id"] = rec.DocumentID
		item.Extra["chunk_id"] = rec.ChunkID
		item.Extra["reranked"] = strconv.FormatBool(rec.Reranked)
	case ConfigEntry:
		item.RelevanceScore = 1
		item.Extra["kind"] = "config"
		item.Extra["key"] = rec.Key
		item.Extra["category"] = rec.Category
	case Rule:
		item.RelevanceScore = 1
		item.Extra["kind"] = "rule"
		item.Extra["name"] = rec.Name
		item.Extra["category"] = rec.Category
	case Relationship:
		item.RelevanceScore = 1
		item.Extra["from"] = rec.From.ID
		item.Extra["to"] = rec.To.ID
		item.Extra["relation"] = rec.Relation
	}
	return item
}
