package service

import (
	"context"
	"sync"

	"github.com/rohanjaggi/hdb-prediction/internal/apperrors"
	"github.com/rohanjaggi/hdb-prediction/internal/model"
	"github.com/rohanjaggi/hdb-prediction/internal/oracle"
)

// scriptedLLM replies from a queue; an empty queue repeats the last reply.
type scriptedLLM struct {
	mu       sync.Mutex
	replies  []string
	err      error
	block    bool // wait for ctx instead of replying
	requests []CompletionRequest
}

func (s *scriptedLLM) Name() string { return "scripted" }

func (s *scriptedLLM) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	block, err := s.block, s.err
	var reply string
	if len(s.replies) > 0 {
		reply = s.replies[0]
		if len(s.replies) > 1 {
			s.replies = s.replies[1:]
		}
	}
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// streamingLLM splits its reply into chunks
type streamingLLM struct {
	scriptedLLM
	chunks []string
}

func (s *streamingLLM) CompleteStream(ctx context.Context, req CompletionRequest, callback StreamCallback) (string, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	var full string
	for _, c := range s.chunks {
		full += c
		if err := callback(&StreamChunk{Content: c}); err != nil {
			return "", err
		}
	}
	return full, nil
}

// tableEncoder knows a fixed set of towns and flat types
type tableEncoder struct {
	towns     map[string]int
	flatTypes map[string]int
}

func newTableEncoder() *tableEncoder {
	return &tableEncoder{
		towns: map[string]int{
			"ANG MO KIO": 0, "BEDOK": 1, "BISHAN": 2, "PUNGGOL": 3,
			"SENGKANG": 4, "TAMPINES": 5, "WOODLANDS": 6, "YISHUN": 7,
		},
		flatTypes: map[string]int{"2 ROOM": 0, "3 ROOM": 1, "4 ROOM": 2, "5 ROOM": 3, "EXECUTIVE": 4},
	}
}

func (e *tableEncoder) Encode(location, unitType string) (int, int, error) {
	town, ok := e.towns[location]
	if !ok {
		return 0, 0, apperrors.UnknownCategory("Unknown town: %s", location)
	}
	flat, ok := e.flatTypes[unitType]
	if !ok {
		return 0, 0, apperrors.UnknownCategory("Unknown flat type: %s", unitType)
	}
	return town, flat, nil
}

// linearOracle prices a flat as area*5000 + storey*1000 + town*10000
type linearOracle struct {
	err error
}

func (o linearOracle) Predict(_ context.Context, f oracle.Features) (float64, error) {
	if o.err != nil {
		return 0, o.err
	}
	return float64(f.AreaSqm*5000 + f.Storey*1000 + f.LocationCode*10000), nil
}

type fixedRecommender struct {
	result *model.RecommendationResult
	err    error
	calls  int
}

func (r *fixedRecommender) Recommend(_ context.Context, lookbackYears int) (*model.RecommendationResult, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	out := *r.result
	out.LookbackYears = lookbackYears
	return &out, nil
}

// recordingStore captures analysis logs written in the background
type recordingStore struct {
	entries chan *model.AnalysisLog
}

func newRecordingStore() *recordingStore {
	return &recordingStore{entries: make(chan *model.AnalysisLog, 4)}
}

func (s *recordingStore) LogAnalysis(_ context.Context, entry *model.AnalysisLog) error {
	s.entries <- entry
	return nil
}

type fixedEmbedder struct {
	vector []float32
}

func (e fixedEmbedder) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vector
	}
	return out, nil
}
