package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/mohaanymo/rainbow/internal/models"
)

// segmentTask is one segment fetch for the prefetcher.
type segmentTask struct {
	Segment *models.Segment
	Rep     *models.Representation
	Kind    models.TrackKind
}

// segmentResult reports a finished fetch.
type segmentResult struct {
	Task  *segmentTask
	Bytes int64
	Data  []byte
	Err   error
}

// prefetcher downloads segments with a fixed number of workers, in
// submission order, retrying failures with exponential backoff.
type prefetcher struct {
	workers    int
	client     *http.Client
	logger     zerolog.Logger
	maxRetries int
	baseDelay  time.Duration
	// keepData retains segment bodies on results (init segments).
	keepData func(*segmentTask) bool

	completed  atomic.Int64
	totalBytes atomic.Int64
	failed     atomic.Int64
}

func newPrefetcher(workers int, client *http.Client, logger zerolog.Logger) *prefetcher {
	if workers < 1 {
		workers = 1
	}
	return &prefetcher{
		workers:    workers,
		client:     client,
		logger:     logger,
		maxRetries: 3,
		baseDelay:  250 * time.Millisecond,
	}
}

// Run fetches tasks until all are done or ctx is cancelled, calling
// onDone for each finished task. onDone may be called concurrently.
func (p *prefetcher) Run(ctx context.Context, tasks []*segmentTask, onDone func(segmentResult)) {
	queue := make(chan *segmentTask)
	var wg sync.WaitGroup

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range queue {
				res := p.fetchSegment(ctx, task)
				if ctx.Err() != nil {
					return
				}
				onDone(res)
			}
		}()
	}

feed:
	for _, t := range tasks {
		select {
		case queue <- t:
		case <-ctx.Done():
			break feed
		}
	}
	close(queue)
	wg.Wait()
}

// fetchSegment performs the HTTP fetch with retries.
func (p *prefetcher) fetchSegment(ctx context.Context, task *segmentTask) segmentResult {
	var lastErr error

	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * p.baseDelay
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return segmentResult{Task: task, Err: ctx.Err()}
			}
		}

		data, err := p.doRequest(ctx, task)
		if err == nil {
			p.completed.Add(1)
			p.totalBytes.Add(int64(len(data)))
			res := segmentResult{Task: task, Bytes: int64(len(data))}
			if p.keepData != nil && p.keepData(task) {
				res.Data = data
			}
			return res
		}

		lastErr = err
		if ctx.Err() != nil {
			return segmentResult{Task: task, Err: ctx.Err()}
		}
		p.logger.Debug().Err(err).Int("segment", task.Segment.Index).Int("attempt", attempt+1).Msg("segment fetch failed")
	}

	p.failed.Add(1)
	return segmentResult{
		Task: task,
		Err:  fmt.Errorf("segment %d: %w (after %d attempts)", task.Segment.Index, lastErr, p.maxRetries),
	}
}

// doRequest performs a single HTTP request.
func (p *prefetcher) doRequest(ctx context.Context, task *segmentTask) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.Segment.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if br := task.Segment.ByteRange; br != nil {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", br.Start, br.End))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// Stats returns fetch counters since creation.
func (p *prefetcher) Stats() (completed, totalBytes, failed int64) {
	return p.completed.Load(), p.totalBytes.Load(), p.failed.Load()
}
