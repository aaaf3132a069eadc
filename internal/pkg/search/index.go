package search

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
	"sync"
)

const snapshotVersion = 1

// 字段权重
const (
	titleWeight   = 3.0
	summaryWeight = 2.0
	contentWeight = 1.0
)

// Document 待索引的文章
type Document struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Slug    string `json:"slug"`
	Summary string `json:"summary"`
	Content string `json:"-"` // 只参与分词，不持久化
}

type Hit struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Slug    string  `json:"slug"`
	Summary string  `json:"summary"`
	Score   float64 `json:"score"`
}

type entry struct {
	Doc   Document           `json:"doc"`
	Terms map[string]float64 `json:"terms"`
}

// Index 倒排索引，并发安全
type Index struct {
	mu       sync.RWMutex
	docs     map[string]*entry
	postings map[string]map[string]float64 // term → docID → 加权词频
}

func NewIndex() *Index {
	return &Index{
		docs:     make(map[string]*entry),
		postings: make(map[string]map[string]float64),
	}
}

// Upsert 新增或替换文档
func (idx *Index) Upsert(doc Document) {
	terms := make(map[string]float64)
	addTerms(terms, doc.Title, titleWeight)
	addTerms(terms, doc.Summary, summaryWeight)
	addTerms(terms, doc.Content, contentWeight)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeLocked(doc.ID)
	e := &entry{Doc: doc, Terms: terms}
	e.Doc.Content = ""
	idx.insertLocked(e)
}

// Remove 删除文档，不存在时忽略
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(id)
}

func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

func (idx *Index) Has(id string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.docs[id]
	return ok
}

// Search 按 tf-idf 打分，最后一个词按前缀匹配
func (idx *Index) Search(query string, limit int) []Hit {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := float64(len(idx.docs))
	scores := make(map[string]float64)

	score := func(term string) {
		posting := idx.postings[term]
		if len(posting) == 0 {
			return
		}
		idf := math.Log(1 + n/float64(len(posting)))
		for id, tf := range posting {
			scores[id] += tf * idf
		}
	}

	for i, tok := range tokens {
		if i == len(tokens)-1 && len([]rune(tok)) >= 2 {
			for term := range idx.postings {
				if strings.HasPrefix(term, tok) {
					score(term)
				}
			}
			continue
		}
		score(tok)
	}

	hits := make([]Hit, 0, len(scores))
	for id, s := range scores {
		d := idx.docs[id].Doc
		hits = append(hits, Hit{ID: d.ID, Title: d.Title, Slug: d.Slug, Summary: d.Summary, Score: s})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].ID < hits[j].ID
		}
		return hits[i].Score > hits[j].Score
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

type snapshot struct {
	Version int      `json:"version"`
	Docs    []*entry `json:"docs"`
}

func (idx *Index) MarshalJSON() ([]byte, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	snap := snapshot{Version: snapshotVersion, Docs: make([]*entry, 0, len(idx.docs))}
	for _, e := range idx.docs {
		snap.Docs = append(snap.Docs, e)
	}
	sort.Slice(snap.Docs, func(i, j int) bool { return snap.Docs[i].Doc.ID < snap.Docs[j].Doc.ID })
	return json.Marshal(snap)
}

func (idx *Index) UnmarshalJSON(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.docs = make(map[string]*entry, len(snap.Docs))
	idx.postings = make(map[string]map[string]float64)
	for _, e := range snap.Docs {
		if e == nil || e.Doc.ID == "" {
			continue
		}
		if e.Terms == nil {
			e.Terms = map[string]float64{}
		}
		idx.insertLocked(e)
	}
	return nil
}

func (idx *Index) insertLocked(e *entry) {
	idx.docs[e.Doc.ID] = e
	for term, w := range e.Terms {
		posting, ok := idx.postings[term]
		if !ok {
			posting = make(map[string]float64)
			idx.postings[term] = posting
		}
		posting[e.Doc.ID] = w
	}
}

func (idx *Index) removeLocked(id string) {
	e, ok := idx.docs[id]
	if !ok {
		return
	}
	for term := range e.Terms {
		posting := idx.postings[term]
		delete(posting, id)
		if len(posting) == 0 {
			delete(idx.postings, term)
		}
	}
	delete(idx.docs, id)
}

func addTerms(terms map[string]float64, text string, weight float64) {
	for _, tok := range Tokenize(text) {
		terms[tok] += weight
	}
}
