package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/StoryboardStudio/internal/llm"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	if handler == nil {
		handler = func(w http.ResponseWriter, r *http.Request) {}
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := llm.GetProvider("google", map[string]string{"api_key": "k", "base_url": srv.URL})
	require.NoError(t, err)
	provider := p.(*Provider)
	t.Cleanup(func() { provider.Close() })
	return provider
}

func TestInitializeRequiresKey(t *testing.T) {
	_, err := llm.GetProvider("google", map[string]string{})
	assert.Error(t, err)
}

type fakeModel struct {
	name  string
	req   llm.CompletionRequest
	parts []genai.Part
	resp  *genai.GenerateContentResponse
	err   error
}

func (f *fakeModel) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.parts = parts
	return f.resp, f.err
}

func withFakeModel(p *Provider, m *fakeModel) {
	p.newModel = func(name string, req llm.CompletionRequest) contentGenerator {
		m.name = name
		m.req = req
		return m
	}
}

func TestCompleteTextJoinsTextParts(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("text completion should not use the REST endpoint")
	})
	m := &fakeModel{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []genai.Part{genai.Text("[1,"), genai.Text("2]")}},
			FinishReason: genai.FinishReasonStop,
		}},
		UsageMetadata: &genai.UsageMetadata{TotalTokenCount: 7},
	}}
	withFakeModel(p, m)

	resp, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, "[1,2]", resp.Text)
	assert.Equal(t, "gemini-2.5-flash", resp.ModelName)
	assert.Equal(t, 7, resp.TokensUsed)
	assert.Equal(t, "gemini-2.5-flash", m.name)
	assert.True(t, m.req.JSON)
	assert.Equal(t, []genai.Part{genai.Text("hi")}, m.parts)
}

func TestCompleteTextErrors(t *testing.T) {
	p := newTestProvider(t, nil)

	withFakeModel(p, &fakeModel{err: errors.New("quota exceeded")})
	_, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	withFakeModel(p, &fakeModel{resp: &genai.GenerateContentResponse{}})
	_, err = p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "x"})
	assert.Error(t, err)
}

func TestConfiguredModelAppliesRequest(t *testing.T) {
	p := newTestProvider(t, nil)

	model := p.configuredModel("gemini-2.5-pro", llm.CompletionRequest{
		JSON:         true,
		Temperature:  0.4,
		MaxTokens:    256,
		SystemPrompt: "you are a director",
	}).(*genai.GenerativeModel)

	assert.Equal(t, "application/json", model.ResponseMIMEType)
	require.NotNil(t, model.Temperature)
	assert.Equal(t, float32(0.4), *model.Temperature)
	require.NotNil(t, model.MaxOutputTokens)
	assert.Equal(t, int32(256), *model.MaxOutputTokens)
	require.NotNil(t, model.SystemInstruction)
	assert.Equal(t, []genai.Part{genai.Text("you are a director")}, model.SystemInstruction.Parts)
	require.NoError(t, p.Close())
}

func TestGenerateImageSendsReferenceInline(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.5-flash-image:generateContent", r.URL.Path)

		var body struct {
			Contents []content `json:"contents"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		parts := body.Contents[0].Parts
		require.Len(t, parts, 2)
		assert.Equal(t, "image/png", parts[0].InlineData.MimeType)
		assert.Equal(t, "QUJD", parts[0].InlineData.Data)
		assert.Equal(t, "a cat", parts[1].Text)

		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/jpeg","data":"Wlla"}}]}}]}`))
	})

	resp, err := p.GenerateImage(context.Background(), llm.ImageRequest{
		Prompt:         "a cat",
		AspectRatio:    "16:9",
		ReferenceImage: "data:image/png;base64,QUJD",
	})
	require.NoError(t, err)
	assert.Equal(t, "data:image/jpeg;base64,Wlla", resp.URL)
}

func TestGenerateImageWithoutImageData(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"sorry"}]}}]}`))
	})

	_, err := p.GenerateImage(context.Background(), llm.ImageRequest{Prompt: "x"})
	assert.ErrorIs(t, err, llm.ErrNoImageData)
}

func TestAPIErrorIsReported(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	})

	_, err := p.GenerateImage(context.Background(), llm.ImageRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Contains(t, err.Error(), "429")
}
