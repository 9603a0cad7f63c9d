package agentloop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hyperfocus-ai/hyperfocus/llmrouter"
)

// DefaultPageSize is the page size used when the caller passes zero.
const DefaultPageSize = 15000

// lineBreakLookback is how far back from a hard page boundary the splitter
// searches for a newline to break on.
const lineBreakLookback = 200

// Page is one slice of the input text. Text is the exact substring
// [Start, End) of the original, so concatenating all pages in order
// reproduces the input byte for byte.
type Page struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// SplitPages splits text into pages of at most pageSize bytes, preferring
// to break just after a newline found within lineBreakLookback of the hard
// boundary. A hard cut never lands mid-rune, so every page is valid UTF-8
// when the input is. The pages partition the input exactly: nothing is
// trimmed, merged, or rewritten.
func SplitPages(text string, pageSize int) []Page {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if len(text) <= pageSize {
		return []Page{{Index: 0, Text: text, Start: 0, End: len(text)}}
	}

	var pages []Page
	start := 0
	for start < len(text) {
		end := start + pageSize
		if end >= len(text) {
			end = len(text)
		} else {
			windowStart := end - lineBreakLookback
			if windowStart < start {
				windowStart = start
			}
			if idx := strings.LastIndexByte(text[windowStart:end], '\n'); idx >= 0 {
				end = windowStart + idx + 1
			} else {
				for end > start+1 && !utf8.RuneStart(text[end]) {
					end--
				}
			}
		}
		pages = append(pages, Page{
			Index: len(pages),
			Text:  text[start:end],
			Start: start,
			End:   end,
		})
		start = end
	}
	return pages
}

// Segmenter splits text into chunks of at most maxChunkLength characters.
// Implementations may fail; callers fall back to SplitPages.
type Segmenter interface {
	Segment(ctx context.Context, text string, maxChunkLength int) ([]string, error)
}

const (
	jinaSegmentURL = "https://api.jina.ai/v1/segment"

	// The segmenter API rejects inputs at or above 64k characters.
	jinaInputCutoff = 64000
)

// JinaSegmenter splits text into semantic chunks via the Jina AI segmenter
// API.
type JinaSegmenter struct {
	apiKey     string
	httpClient *http.Client
	apiURL     string
}

// NewJinaSegmenter creates a segmenter using the given API key.
func NewJinaSegmenter(apiKey string) *JinaSegmenter {
	return &JinaSegmenter{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiURL:     jinaSegmentURL,
	}
}

type jinaSegmentRequest struct {
	Content        string `json:"content"`
	ReturnTokens   bool   `json:"return_tokens"`
	ReturnChunks   bool   `json:"return_chunks"`
	MaxChunkLength int    `json:"max_chunk_length"`
}

type jinaSegmentResponse struct {
	Chunks []string `json:"chunks"`
}

// Segment calls the segmenter API. Inputs at or above the API's size
// cutoff fail immediately so the caller can fall back without a wasted
// round trip.
func (s *JinaSegmenter) Segment(ctx context.Context, text string, maxChunkLength int) ([]string, error) {
	if len(text) >= jinaInputCutoff {
		return nil, fmt.Errorf("input of %d chars exceeds segmenter limit of %d", len(text), jinaInputCutoff)
	}

	body, err := json.Marshal(jinaSegmentRequest{
		Content:        text,
		ReturnChunks:   true,
		MaxChunkLength: maxChunkLength,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("segmenter returned status %d: %s", resp.StatusCode, string(payload))
	}

	var result jinaSegmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if len(result.Chunks) == 0 {
		return nil, fmt.Errorf("segmenter returned no chunks")
	}
	return result.Chunks, nil
}

// Aggregation selects how per-page results are combined.
type Aggregation string

const (
	AggregationConcatenate Aggregation = "concatenate"
	AggregationSummarize   Aggregation = "summarize"
)

// PageResult is the outcome of processing one page. A failed page carries
// its error here; other pages are unaffected.
type PageResult struct {
	PageIndex int    `json:"page_index"`
	Text      string `json:"text"`
	Err       error  `json:"-"`
}

// PagedTaskRunner executes a task prompt over input too large for one
// backend call. The input is split into pages, each page is processed in
// an isolated completion with no access to the main conversation, and the
// per-page results are aggregated.
type PagedTaskRunner struct {
	set       llmrouter.BackendSet
	threshold int
	segmenter Segmenter
	emitter   *EventEmitter
	retry     llmrouter.RetryPolicy
}

// NewPagedTaskRunner creates a runner over the given backend set. The
// threshold feeds per-page backend selection the same way it does the main
// loop's.
func NewPagedTaskRunner(set llmrouter.BackendSet, threshold int) *PagedTaskRunner {
	return &PagedTaskRunner{
		set:       set,
		threshold: threshold,
		retry:     llmrouter.DefaultRetryPolicy(),
	}
}

// SetRetryPolicy overrides the retry policy for per-page backend calls.
func (r *PagedTaskRunner) SetRetryPolicy(policy llmrouter.RetryPolicy) {
	r.retry = policy
}

// SetSegmenter installs an optional semantic segmenter tried before the
// built-in line-aware splitter.
func (r *PagedTaskRunner) SetSegmenter(seg Segmenter) {
	r.segmenter = seg
}

// SetEmitter installs an optional event emitter for page progress events.
func (r *PagedTaskRunner) SetEmitter(emitter *EventEmitter) {
	r.emitter = emitter
}

// Run executes the task over the data. The data is split into pages, each
// page processed independently with page-position framing (data that fits
// in one page still runs as page 1 of 1), and the results combined per
// the aggregation strategy. A page failure never aborts the run: the
// failed page is reported in place and every other page still completes.
func (r *PagedTaskRunner) Run(ctx context.Context, task, data string, pageSize int, agg Aggregation) (string, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	switch agg {
	case AggregationConcatenate, AggregationSummarize:
	case "":
		agg = AggregationConcatenate
	default:
		return "", fmt.Errorf("unknown aggregation strategy: %q", agg)
	}

	pages := r.split(ctx, data, pageSize)
	results := make([]PageResult, len(pages))
	for i, page := range pages {
		r.emit(EventPageStart, map[string]interface{}{
			"page": i + 1, "pages": len(pages),
		})
		text, err := r.completeTask(ctx, pageTaskPrompt(task, i, len(pages)), page.Text)
		results[i] = PageResult{PageIndex: i, Text: text, Err: err}
		if err != nil {
			r.emit(EventPageError, map[string]interface{}{
				"page": i + 1, "pages": len(pages), "error": err.Error(),
			})
			continue
		}
		r.emit(EventPageEnd, map[string]interface{}{
			"page": i + 1, "pages": len(pages),
		})
	}

	combined := concatenateResults(results, len(pages))
	if agg == AggregationSummarize {
		return r.completeTask(ctx, summarizePrompt(task), combined)
	}
	return combined, nil
}

// split tries the semantic segmenter first and falls back to line-aware
// splitting on any failure, including chunks that do not reproduce the
// input exactly. Data that fits one page skips the segmenter.
func (r *PagedTaskRunner) split(ctx context.Context, data string, pageSize int) []Page {
	if len(data) <= pageSize {
		return []Page{{Index: 0, Text: data, Start: 0, End: len(data)}}
	}
	if r.segmenter != nil {
		chunks, err := r.segmenter.Segment(ctx, data, pageSize)
		if err == nil {
			if pages, ok := pagesFromChunks(data, chunks); ok {
				return pages
			}
		}
	}
	return SplitPages(data, pageSize)
}

// pagesFromChunks converts segmenter chunks to pages, verifying they
// partition the input exactly.
func pagesFromChunks(data string, chunks []string) ([]Page, bool) {
	pages := make([]Page, 0, len(chunks))
	offset := 0
	for i, chunk := range chunks {
		end := offset + len(chunk)
		if end > len(data) || data[offset:end] != chunk {
			return nil, false
		}
		pages = append(pages, Page{Index: i, Text: chunk, Start: offset, End: end})
		offset = end
	}
	if offset != len(data) {
		return nil, false
	}
	return pages, true
}

// completeTask runs one isolated completion: a fresh two-message context
// with no tools and no access to any conversation history.
func (r *PagedTaskRunner) completeTask(ctx context.Context, task, data string) (string, error) {
	messages := []llmrouter.Message{
		llmrouter.SystemMessage(taskExecutorSystemPrompt),
		llmrouter.UserMessage(taskUserPrompt(task, data)),
	}

	sel, err := llmrouter.Select(messages, r.set, r.threshold)
	if err != nil {
		return "", err
	}

	resp, err := llmrouter.Retry(ctx, r.retry, func(ctx context.Context) (*llmrouter.AssembledResponse, error) {
		return sel.Backend.Client.Complete(ctx, llmrouter.Request{
			Model:    sel.Backend.Model,
			Messages: messages,
		})
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// concatenateResults joins per-page results in page order. Failed pages
// are reported in place so downstream consumers can see the gap.
func concatenateResults(results []PageResult, pageCount int) string {
	ordered := make([]PageResult, len(results))
	copy(ordered, results)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].PageIndex < ordered[j].PageIndex
	})

	parts := make([]string, 0, len(ordered))
	for _, res := range ordered {
		if res.Err != nil {
			pageErr := &PageTaskError{PageIndex: res.PageIndex, PageCount: pageCount, Cause: res.Err}
			parts = append(parts, fmt.Sprintf("[%v]", pageErr))
			continue
		}
		parts = append(parts, res.Text)
	}
	return strings.Join(parts, PageBreakSeparator)
}

func (r *PagedTaskRunner) emit(kind EventKind, data map[string]interface{}) {
	if r.emitter != nil {
		r.emitter.Emit(kind, data)
	}
}

// RegisterPagedTaskTool registers a process_data tool backed by the
// runner, letting the model offload work on large data to isolated
// per-page completions. The result is excluded from future context by
// default since the model consumes it in the iteration it arrives.
func RegisterPagedTaskTool(reg *ToolRegistry, runner *PagedTaskRunner, defaultPageSize int) {
	if defaultPageSize <= 0 {
		defaultPageSize = DefaultPageSize
	}
	reg.Register(RegisteredTool{
		Definition: llmrouter.ToolDefinition{
			Name:        "process_data",
			Description: "Process a large block of data page by page with isolated LLM calls and aggregate the results.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"task": map[string]interface{}{
						"type":        "string",
						"description": "Instructions for what to do with the data.",
					},
					"data": map[string]interface{}{
						"type":        "string",
						"description": "The data to process.",
					},
					"page_size": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum characters per page.",
					},
					"aggregation": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"concatenate", "summarize"},
						"description": "How to combine page results. Default: concatenate.",
					},
				},
				"required": []string{"task", "data"},
			},
		},
		Executor: func(ctx context.Context, arguments json.RawMessage) (ToolOutcome, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return ToolOutcome{}, err
			}
			task, ok := GetStringArg(args, "task")
			if !ok || task == "" {
				return ToolOutcome{}, fmt.Errorf("task is required")
			}
			data, ok := GetStringArg(args, "data")
			if !ok {
				return ToolOutcome{}, fmt.Errorf("data is required")
			}

			pageSize := defaultPageSize
			if n, ok := GetIntArg(args, "page_size"); ok && n > 0 {
				pageSize = n
			}
			agg := AggregationConcatenate
			if a, ok := GetStringArg(args, "aggregation"); ok && a != "" {
				agg = Aggregation(a)
			}

			result, err := runner.Run(ctx, task, data, pageSize, agg)
			if err != nil {
				return ToolOutcome{}, err
			}
			return ToolOutcome{
				Data:             result,
				IncludeInContext: false,
				ContextGuidance:  "The processed result was delivered in a previous iteration. Re-run process_data if you need it again.",
			}, nil
		},
	})
}
