// Package mock provides a test double for the titles.Service interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/topictrends/pkg/titles"
)

// Ensure Service implements titles.Service at compile time.
var _ titles.Service = (*Service)(nil)

// Service is a mock implementation of titles.Service backed by static maps.
type Service struct {
	mu sync.Mutex

	// Titles maps wiki -> qid -> title. QIDs absent from a wiki's map are
	// reported as not existing in that wiki.
	Titles map[string]map[uint32]string

	// Err, if non-nil, is returned from both methods.
	Err error

	// TitlesByQIDsCalls records the QID batches passed to TitlesByQIDs.
	TitlesByQIDsCalls [][]uint32
}

// QIDByTitle implements titles.Service by reverse lookup over Titles.
func (s *Service) QIDByTitle(_ context.Context, wiki, title string) (uint32, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, false, s.Err
	}
	for qid, t := range s.Titles[wiki] {
		if t == title {
			return qid, true, nil
		}
	}
	return 0, false, nil
}

// TitlesByQIDs implements titles.Service.
func (s *Service) TitlesByQIDs(_ context.Context, wiki string, qids []uint32) (map[uint32]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]uint32, len(qids))
	copy(cp, qids)
	s.TitlesByQIDsCalls = append(s.TitlesByQIDsCalls, cp)
	if s.Err != nil {
		return nil, s.Err
	}
	result := make(map[uint32]string)
	for _, qid := range qids {
		if title, ok := s.Titles[wiki][qid]; ok {
			result[qid] = title
		}
	}
	return result, nil
}
