package suggest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/filingcheck/internal/guard"
	"github.com/dshills/filingcheck/internal/llm"
	"github.com/dshills/filingcheck/internal/redflag"
	"github.com/dshills/filingcheck/internal/retrieval"
	"github.com/dshills/filingcheck/internal/schema"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

const jurisdictionClause = "This Agreement is subject to the jurisdiction of the UAE Federal Courts."

// queryEmbedder answers every query with the same vector.
type queryEmbedder struct {
	vec  []float32
	fail error
}

func (e *queryEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.fail != nil {
		return nil, e.fail
	}
	return e.vec, nil
}

func (e *queryEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("passages are pre-embedded")
}

func (e *queryEmbedder) Dimensions() int   { return 2 }
func (e *queryEmbedder) ModelName() string { return "query" }

func buildIndex(t *testing.T, e *queryEmbedder) *retrieval.Index {
	t.Helper()
	ix, err := retrieval.Build(context.Background(), []schema.ReferencePassage{
		{ID: "a", Citation: "ADGM Courts Regulations 2015", Text: "jurisdiction of the court of first instance", Embedding: []float32{1, 0}},
		{ID: "b", Citation: "Companies Regulations 2020", Text: "registered office of a company", Embedding: []float32{0.6, 0.8}},
		{ID: "c", Citation: "Employment Regulations 2019", Text: "employment contracts", Embedding: []float32{0, 1}},
	}, e)
	require.NoError(t, err)
	return ix
}

func jurisdictionFixture() (schema.RedFlag, *schema.Document) {
	doc := &schema.Document{
		Name: "agreement.docx",
		Paragraphs: []schema.Paragraph{
			{ID: "p1", Text: "SHAREHOLDERS AGREEMENT", Position: 0},
			{ID: "p2", Text: jurisdictionClause, Position: 1},
		},
	}
	start := strings.Index(jurisdictionClause, "UAE Federal Courts")
	flag := schema.RedFlag{
		RuleID:      "wrong_jurisdiction",
		Document:    doc.Name,
		ParagraphID: "p2",
		Start:       start,
		End:         start + len("UAE Federal Courts"),
		Severity:    schema.SeverityHigh,
		Description: "Clause refers to a court or law outside ADGM",
		Match:       "UAE Federal Courts",
	}
	return flag, doc
}

func TestSuggest_GroundedKeepsPassagesAboveFloor(t *testing.T) {
	e := New(buildIndex(t, &queryEmbedder{vec: []float32{1, 0}}), nil, Config{}, quiet)
	flag, doc := jurisdictionFixture()

	sg, err := e.Suggest(context.Background(), flag, doc)
	require.NoError(t, err)
	assert.True(t, sg.Grounded)
	require.Len(t, sg.Passages, 2)
	assert.Equal(t, []string{"ADGM Courts Regulations 2015", "Companies Regulations 2020"}, sg.Citations)
	assert.InDelta(t, 1.0, sg.TopScore, 1e-9)
	assert.Equal(t, "template", sg.Composer)
	assert.Equal(t, "This Agreement is subject to the jurisdiction of the ADGM Courts.", sg.Rewrite)
	assert.Empty(t, sg.Note)
	assert.NotContains(t, sg.Text, strings.TrimSpace(ungroundedSuffix))
}

func TestSuggest_NoCitationsBelowFloor(t *testing.T) {
	e := New(buildIndex(t, &queryEmbedder{vec: []float32{0, -1}}), nil, Config{GroundingFloor: 0.2}, quiet)
	flag, doc := jurisdictionFixture()

	sg, err := e.Suggest(context.Background(), flag, doc)
	require.NoError(t, err)
	assert.False(t, sg.Grounded)
	assert.Empty(t, sg.Passages)
	assert.Empty(t, sg.Citations)
	assert.Equal(t, NoteBelowFloor, sg.Note)
	assert.Contains(t, sg.Text, "current ADGM regulations")
	assert.False(t, RetrievalFailed(sg))
}

func TestSuggest_RetrievalFailureIsUngrounded(t *testing.T) {
	e := New(buildIndex(t, &queryEmbedder{fail: errors.New("connection refused")}), nil, Config{}, quiet)
	flag, doc := jurisdictionFixture()

	sg, err := e.Suggest(context.Background(), flag, doc)
	require.NoError(t, err)
	assert.False(t, sg.Grounded)
	assert.Empty(t, sg.Citations)
	assert.Equal(t, NoteRetrievalFailed, sg.Note)
	assert.True(t, RetrievalFailed(sg))
	assert.NotEmpty(t, sg.Text)
}

func TestSuggest_NoIndex(t *testing.T) {
	e := New(nil, nil, Config{}, quiet)
	assert.False(t, e.Grounding())
	flag, doc := jurisdictionFixture()

	sg, err := e.Suggest(context.Background(), flag, doc)
	require.NoError(t, err)
	assert.False(t, sg.Grounded)
	assert.Equal(t, NoteIndexUnavailable, sg.Note)
}

func TestSuggest_CancelledContext(t *testing.T) {
	e := New(buildIndex(t, &queryEmbedder{vec: []float32{1, 0}}), nil, Config{}, quiet)
	flag, doc := jurisdictionFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Suggest(ctx, flag, doc)
	assert.ErrorIs(t, err, context.Canceled)
}

type failingComposer struct{}

func (failingComposer) Name() string { return "broken" }
func (failingComposer) Compose(context.Context, Request) (Draft, error) {
	return Draft{}, errors.New("model unavailable")
}

func TestSuggest_ComposerFailureFallsBackToTemplate(t *testing.T) {
	e := New(buildIndex(t, &queryEmbedder{vec: []float32{1, 0}}), failingComposer{}, Config{}, quiet)
	flag, doc := jurisdictionFixture()

	sg, err := e.Suggest(context.Background(), flag, doc)
	require.NoError(t, err)
	assert.Equal(t, "template", sg.Composer)
	assert.Equal(t, NoteComposerFallback, sg.Note)
	assert.True(t, ComposerFellBack(sg))
	assert.False(t, RetrievalFailed(sg))
	assert.True(t, sg.Grounded, "grounding survives a composer failure")
	assert.NotEmpty(t, sg.Citations)
}

type chattyComposer struct{}

func (chattyComposer) Name() string { return "chatty" }
func (chattyComposer) Compose(context.Context, Request) (Draft, error) {
	return Draft{Text: "Fix it. Citation: Invented Regulations 1999"}, nil
}

func TestSuggest_CitationsOnlyFromRetainedPassages(t *testing.T) {
	e := New(buildIndex(t, &queryEmbedder{vec: []float32{0, -1}}), chattyComposer{}, Config{}, quiet)
	flag, doc := jurisdictionFixture()

	sg, err := e.Suggest(context.Background(), flag, doc)
	require.NoError(t, err)
	assert.Empty(t, sg.Citations)
	assert.Equal(t, "chatty", sg.Composer)
}

func TestSuggest_KLimitsPassages(t *testing.T) {
	e := New(buildIndex(t, &queryEmbedder{vec: []float32{1, 0}}), nil, Config{K: 1}, quiet)
	flag, doc := jurisdictionFixture()
	sg, err := e.Suggest(context.Background(), flag, doc)
	require.NoError(t, err)
	assert.Len(t, sg.Passages, 1)
}

func TestTemplate_SupersededRewrite(t *testing.T) {
	clause := "Incorporated under the Companies Regulations 2015."
	start := strings.Index(clause, "Companies Regulations 2015")
	d, err := NewTemplateComposer().Compose(context.Background(), Request{
		Clause: clause,
		Flag: schema.RedFlag{
			RuleID: "superseded_regulation",
			Start:  start,
			End:    start + len("Companies Regulations 2015"),
			Match:  "Companies Regulations 2015",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Incorporated under the Companies Regulations 2020.", d.Rewrite)
}

func TestTemplate_RewritesDetectedJurisdictionFlags(t *testing.T) {
	detector, err := redflag.New(nil, quiet)
	require.NoError(t, err)

	tests := []struct {
		clause string
		want   string
	}{
		{
			"This Agreement is governed by the laws of England and Wales.",
			"This Agreement is governed by the laws of the Abu Dhabi Global Market.",
		},
		{
			"This Agreement is governed by and construed in accordance with the laws of the State of New York.",
			"This Agreement is governed by and construed in accordance with the laws of the Abu Dhabi Global Market.",
		},
		{
			"Disputes are subject to the DIFC Courts.",
			"Disputes are subject to the ADGM Courts.",
		},
		{
			"The Company shall comply with UAE Federal Laws.",
			"The Company shall comply with the laws of the Abu Dhabi Global Market.",
		},
	}
	for _, tt := range tests {
		doc := &schema.Document{Name: "articles.txt", Paragraphs: []schema.Paragraph{{ID: "p1", Text: tt.clause}}}
		flags, _ := detector.Detect(doc)
		var flag *schema.RedFlag
		for i := range flags {
			if flags[i].RuleID == "wrong_jurisdiction" {
				flag = &flags[i]
			}
		}
		require.NotNil(t, flag, "no wrong_jurisdiction flag for %q", tt.clause)

		d, err := NewTemplateComposer().Compose(context.Background(), Request{Clause: tt.clause, Flag: *flag})
		require.NoError(t, err)
		assert.Equal(t, tt.want, d.Rewrite, "clause %q", tt.clause)
	}
}

func TestTemplate_StaleOffsetsNoRewrite(t *testing.T) {
	d, _ := NewTemplateComposer().Compose(context.Background(), Request{
		Clause: "short",
		Flag:   schema.RedFlag{RuleID: "wrong_jurisdiction", Start: 10, End: 20, Match: "UAE Federal Courts"},
	})
	assert.Empty(t, d.Rewrite)
}

func TestTemplate_UnknownRuleIsGeneric(t *testing.T) {
	d, _ := NewTemplateComposer().Compose(context.Background(), Request{Flag: schema.RedFlag{RuleID: "custom_rule"}})
	assert.Contains(t, d.Text, genericAction)
}

// fakeProvider records prompts and replays canned answers.
type fakeProvider struct {
	mu      sync.Mutex
	prompts []string
	answer  string
	err     error
	calls   int
}

func (p *fakeProvider) Complete(_ context.Context, req *llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.prompts = append(p.prompts, req.UserPrompt)
	if p.err != nil {
		return nil, p.err
	}
	return &llm.Response{Content: p.answer, Model: "fake:model"}, nil
}

func fastCaller() *guard.Caller {
	return guard.New(guard.Config{
		RequestsPerSecond: 1000,
		Burst:             100,
		Timeout:           time.Second,
		MaxRetries:        2,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
	}, quiet)
}

func TestLLMComposer_UsesModelAnswer(t *testing.T) {
	p := &fakeProvider{answer: "```json\n" + `{"compliant": false, "issue": "Disputes go to a federal court.", "suggestion": "Name the ADGM Courts.", "rewrite": "This Agreement is subject to the exclusive jurisdiction of the ADGM Courts."}` + "\n```"}
	c := NewLLMComposer(p, "fake:model", fastCaller())
	e := New(buildIndex(t, &queryEmbedder{vec: []float32{1, 0}}), c, Config{}, quiet)
	flag, doc := jurisdictionFixture()

	sg, err := e.Suggest(context.Background(), flag, doc)
	require.NoError(t, err)
	assert.Equal(t, "llm:fake:model", sg.Composer)
	assert.Equal(t, "Disputes go to a federal court. Name the ADGM Courts.", sg.Text)
	assert.Equal(t, "This Agreement is subject to the exclusive jurisdiction of the ADGM Courts.", sg.Rewrite)
	assert.Equal(t, []string{"ADGM Courts Regulations 2015", "Companies Regulations 2020"}, sg.Citations)
	require.Len(t, p.prompts, 1)
	assert.Contains(t, p.prompts[0], "ADGM Courts Regulations 2015")
}

func TestLLMComposer_PermanentErrorNotRetried(t *testing.T) {
	p := &fakeProvider{err: &llm.StatusError{Provider: "fake", Code: http.StatusBadRequest, Message: "bad"}}
	c := NewLLMComposer(p, "fake:model", fastCaller())
	_, err := c.Compose(context.Background(), Request{Flag: schema.RedFlag{RuleID: "missing_date"}})
	require.Error(t, err)
	assert.Equal(t, 1, p.calls)
}

func TestLLMComposer_RetryableErrorRetried(t *testing.T) {
	p := &fakeProvider{err: &llm.StatusError{Provider: "fake", Code: http.StatusServiceUnavailable, Message: "busy"}}
	c := NewLLMComposer(p, "fake:model", fastCaller())
	_, err := c.Compose(context.Background(), Request{Flag: schema.RedFlag{RuleID: "missing_date"}})
	require.Error(t, err)
	assert.Equal(t, 3, p.calls)
}

func TestLLMComposer_InvalidAnswerFails(t *testing.T) {
	p := &fakeProvider{answer: "I think the clause is fine."}
	c := NewLLMComposer(p, "fake:model", fastCaller())
	_, err := c.Compose(context.Background(), Request{Flag: schema.RedFlag{RuleID: "missing_date"}})
	require.Error(t, err)
	require.Equal(t, 2, p.calls, "one repair attempt")
	assert.Contains(t, p.prompts[1], `"JSON syntax error"`)
	assert.NotContains(t, p.prompts[1], "I think the clause is fine.")
}

func TestSanitizeErrForPrompt(t *testing.T) {
	assert.Equal(t, "missing required field", sanitizeErrForPrompt(errors.New("suggestion is required when the clause is not compliant")))
	assert.Equal(t, "field too long", sanitizeErrForPrompt(errors.New("rewrite is 5000 characters, limit is 4000")))
	assert.Equal(t, "schema validation error", sanitizeErrForPrompt(errors.New("something else")))
}

func TestLLMComposer_RedactsClauseAndKeepsTemplateRewrite(t *testing.T) {
	clause := "Notices to jane.doe@example.ae; disputes to the UAE Federal Courts."
	start := strings.Index(clause, "UAE Federal Courts")
	p := &fakeProvider{answer: `{"compliant": false, "issue": "i", "suggestion": "s", "rewrite": "Notices to [REDACTED:email]; disputes to the ADGM Courts."}`}
	c := NewLLMComposer(p, "fake:model", fastCaller())

	d, err := c.Compose(context.Background(), Request{
		Clause: clause,
		Flag:   schema.RedFlag{RuleID: "wrong_jurisdiction", Start: start, End: start + len("UAE Federal Courts"), Match: "UAE Federal Courts"},
	})
	require.NoError(t, err)
	assert.NotContains(t, p.prompts[0], "jane.doe@example.ae")
	assert.Contains(t, p.prompts[0], "[REDACTED:email]")
	assert.Equal(t, "Notices to jane.doe@example.ae; disputes to the ADGM Courts.", d.Rewrite)
	assert.Contains(t, d.Note, "1 identifier(s) were redacted")
}

func TestLLMComposer_CompliantKeepsTemplate(t *testing.T) {
	p := &fakeProvider{answer: `{"compliant": true}`}
	c := NewLLMComposer(p, "fake:model", fastCaller())
	d, err := c.Compose(context.Background(), Request{Flag: schema.RedFlag{RuleID: "missing_date", Description: "Document is not dated"}})
	require.NoError(t, err)
	assert.Contains(t, d.Text, "Dated 12 March 2025")
	assert.NotEmpty(t, d.Note)
}
