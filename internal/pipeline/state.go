package pipeline

import (
	"strings"

	"github.com/ppiankov/autoclaim/internal/model"
	"github.com/ppiankov/autoclaim/internal/retrieval"
)

// runState is owned by exactly one run and passed explicitly between stages
type runState struct {
	id             string
	claim          model.ClaimInfo
	claimJSON      string
	queries        model.PolicyQueries
	documents      *documentSet
	policyText     string
	recommendation model.PolicyRecommendation
	decision       model.ClaimDecision
	warnings       []string
}

func newRunState(id string) *runState {
	return &runState{id: id, documents: newDocumentSet()}
}

// documentSet deduplicates documents by id. The first document seen for an
// id is kept and insertion order is preserved.
type documentSet struct {
	order []string
	docs  map[string]retrieval.Document
}

func newDocumentSet() *documentSet {
	return &documentSet{docs: make(map[string]retrieval.Document)}
}

// Add stores doc unless its id is already present; it reports whether doc was stored
func (s *documentSet) Add(doc retrieval.Document) bool {
	if _, ok := s.docs[doc.ID]; ok {
		return false
	}
	s.docs[doc.ID] = doc
	s.order = append(s.order, doc.ID)
	return true
}

// Len returns the number of distinct documents
func (s *documentSet) Len() int {
	return len(s.order)
}

// IDs returns document ids in insertion order
func (s *documentSet) IDs() []string {
	return append([]string(nil), s.order...)
}

// Text joins document texts in insertion order, separated by a blank line
func (s *documentSet) Text() string {
	texts := make([]string, len(s.order))
	for i, id := range s.order {
		texts[i] = s.docs[id].Text
	}
	return strings.Join(texts, "\n\n")
}
