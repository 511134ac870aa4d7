package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
)

// Collector accumulates request counters for the API surface. All methods
// are safe for concurrent use.
type Collector struct {
	mu sync.Mutex

	chatRequests   int64
	streamRequests int64
	scoreRequests  int64

	promptTokens     int64
	completionTokens int64

	badRequests    int64
	forbidden      int64
	internalErrors int64

	mediaResolved map[string]int64
}

func NewCollector() *Collector {
	return &Collector{
		mediaResolved: make(map[string]int64),
	}
}

// RecordChat counts one buffered completion and its token usage.
func (c *Collector) RecordChat(promptTokens, completionTokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chatRequests++
	c.promptTokens += int64(promptTokens)
	c.completionTokens += int64(completionTokens)
}

// RecordStream counts one streaming completion.
func (c *Collector) RecordStream() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streamRequests++
}

// RecordScore counts one score evaluation.
func (c *Collector) RecordScore() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scoreRequests++
}

// RecordRejection counts one failed request by its response status.
func (c *Collector) RecordRejection(status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch status {
	case http.StatusForbidden:
		c.forbidden++
	case http.StatusBadRequest:
		c.badRequests++
	default:
		c.internalErrors++
	}
}

// RecordMedia counts one resolved media input by kind and source.
func (c *Collector) RecordMedia(kind, source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mediaResolved[kind+"/"+source]++
}

// WritePrometheus renders the counters in Prometheus text exposition
// format.
func (c *Collector) WritePrometheus(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	writeCounter(w, "chat_requests_total", "Buffered chat completions served.", c.chatRequests)
	writeCounter(w, "stream_requests_total", "Streaming chat completions served.", c.streamRequests)
	writeCounter(w, "score_requests_total", "Score evaluations served.", c.scoreRequests)
	writeCounter(w, "prompt_tokens_total", "Prompt tokens consumed by buffered completions.", c.promptTokens)
	writeCounter(w, "completion_tokens_total", "Completion tokens produced by buffered completions.", c.completionTokens)
	writeCounter(w, "bad_requests_total", "Requests rejected as invalid.", c.badRequests)
	writeCounter(w, "forbidden_requests_total", "Requests rejected by the media security policy.", c.forbidden)
	writeCounter(w, "internal_errors_total", "Requests failed with an internal error.", c.internalErrors)

	fmt.Fprintf(w, "# HELP media_resolved_total Media inputs resolved, by kind and source.\n")
	fmt.Fprintf(w, "# TYPE media_resolved_total counter\n")
	keys := make([]string, 0, len(c.mediaResolved))
	for key := range c.mediaResolved {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		kind, source := splitMediaKey(key)
		fmt.Fprintf(w, "media_resolved_total{kind=%q,source=%q} %d\n", kind, source, c.mediaResolved[key])
	}
}

func writeCounter(w io.Writer, name, help string, value int64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s counter\n", name)
	fmt.Fprintf(w, "%s %d\n", name, value)
}

func splitMediaKey(key string) (string, string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}
