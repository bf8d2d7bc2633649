package research

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/ayush/research-assistant/backend/internal/llm"
	"github.com/ayush/research-assistant/backend/internal/models"
)

// LiveSampleSize is how many live-data items each report mixes in.
const LiveSampleSize = 2

// LiveDataPool stands in for a live news feed.
var LiveDataPool = []models.LiveDataItem{
	{
		Title:   "AI Research Breakthrough: New Language Models Show Enhanced Reasoning",
		Content: "Recent studies demonstrate significant improvements in AI reasoning capabilities, with new models showing 40% better performance in complex problem-solving tasks.",
		Source:  "TechResearch Daily",
	},
	{
		Title:   "Global Education Technology Market Reaches $400B",
		Content: "The EdTech market continues to expand rapidly, driven by increased digital adoption and remote learning initiatives worldwide.",
		Source:  "Education Tech News",
	},
	{
		Title:   "Sustainability in Tech: Green Computing Initiatives Show Promise",
		Content: "Major tech companies report 30% reduction in carbon footprint through innovative green computing solutions and renewable energy adoption.",
		Source:  "GreenTech Report",
	},
	{
		Title:   "Cybersecurity Alert: New Phishing Techniques Target Remote Workers",
		Content: "Security experts warn of sophisticated phishing campaigns specifically designed to exploit remote work vulnerabilities.",
		Source:  "CyberSecurity Weekly",
	},
	{
		Title:   "Medical AI: Diagnostic Accuracy Reaches 95% in Clinical Trials",
		Content: "Latest medical AI systems demonstrate unprecedented accuracy in diagnostic imaging, potentially revolutionizing healthcare delivery.",
		Source:  "Medical Innovation Journal",
	},
}

// FileLookup resolves file ids to metadata.
type FileLookup interface {
	GetFile(ctx context.Context, id string) (*models.File, error)
}

// Bundle is everything the generation step needs for one job.
type Bundle struct {
	Prompt      string
	Attachments []llm.Attachment
	LiveData    []models.LiveDataItem
	SourcesUsed []string
	Citations   []string
}

// Aggregator combines a job's files and sampled live data into a prompt and
// a source list.
type Aggregator struct {
	files FileLookup
	pool  []models.LiveDataItem

	mu  sync.Mutex
	rng *rand.Rand
}

// NewAggregator returns an Aggregator sampling from pool. A nil rng uses a
// randomly seeded source.
func NewAggregator(files FileLookup, pool []models.LiveDataItem, rng *rand.Rand) *Aggregator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Aggregator{files: files, pool: pool, rng: rng}
}

// Build resolves fileIDs in order, samples live data and assembles the
// prompt. Ids with no metadata are skipped; other lookup errors abort.
func (a *Aggregator) Build(ctx context.Context, question string, fileIDs []string) (*Bundle, error) {
	b := &Bundle{SourcesUsed: []string{}}

	for _, id := range fileIDs {
		f, err := a.files.GetFile(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve file %s: %w", id, err)
		}
		b.Attachments = append(b.Attachments, llm.Attachment{Path: f.StoragePath, MimeType: f.MimeType})
		b.SourcesUsed = append(b.SourcesUsed, f.OriginalName)
	}

	b.LiveData = a.Sample(LiveSampleSize)
	for _, item := range b.LiveData {
		b.SourcesUsed = append(b.SourcesUsed, item.Source)
	}

	b.Prompt = BuildPrompt(question, RenderLiveData(b.LiveData))
	b.Citations = Citations(b.SourcesUsed)
	return b, nil
}

// Sample draws up to n distinct items from the pool, uniformly at random.
func (a *Aggregator) Sample(n int) []models.LiveDataItem {
	if n > len(a.pool) {
		n = len(a.pool)
	}
	a.mu.Lock()
	perm := a.rng.Perm(len(a.pool))
	a.mu.Unlock()

	out := make([]models.LiveDataItem, 0, n)
	for _, i := range perm[:n] {
		out = append(out, a.pool[i])
	}
	return out
}

// RenderLiveData formats sampled items as a labeled text block.
func RenderLiveData(items []models.LiveDataItem) string {
	var b strings.Builder
	b.WriteString("\n\n--- LIVE DATA SOURCES ---\n")
	for _, it := range items {
		fmt.Fprintf(&b, "Title: %s\nContent: %s\nSource: %s\n\n", it.Title, it.Content, it.Source)
	}
	return b.String()
}

// BuildPrompt wraps the question and live-data block in the report frame.
func BuildPrompt(question, liveData string) string {
	return fmt.Sprintf(`
Research Question: %s

Please analyze the uploaded files and the following live data to generate a comprehensive research report.

%s

Generate a structured report with:
1. Key Findings (2-3 main insights)
2. Supporting Evidence (with specific citations)
3. Actionable Recommendations
4. Sources Referenced

Focus on providing evidence-based answers with proper citations.
`, question, liveData)
}

// Citations maps each source name to "Source: <name>", keeping order and
// duplicates.
func Citations(sources []string) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = "Source: " + s
	}
	return out
}
