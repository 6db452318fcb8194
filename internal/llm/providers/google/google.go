// internal/llm/providers/google/google.go
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/Corphon/StoryboardStudio/internal/llm"
)

const (
	defaultBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	defaultTextModel  = "gemini-2.5-flash"
	defaultImageModel = "gemini-2.5-flash-image"
)

func init() {
	llm.Register("google", func() llm.Provider {
		return &Provider{
			baseURL:    defaultBaseURL,
			textModel:  defaultTextModel,
			imageModel: defaultImageModel,
			models:     []string{defaultTextModel, "gemini-2.5-pro", defaultImageModel},
		}
	})
}

// contentGenerator 文本生成所需的模型能力，*genai.GenerativeModel 满足该接口
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Provider 文本经 genai SDK 调用 Gemini，图片输出走 REST 接口
type Provider struct {
	apiKey     string
	baseURL    string
	client     *http.Client
	sdk        *genai.Client
	textModel  string
	imageModel string
	models     []string

	// newModel 按请求构造文本模型
	newModel func(name string, req llm.CompletionRequest) contentGenerator
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey := config["api_key"]
	if apiKey == "" {
		return errors.New("google_api密钥未提供")
	}
	p.apiKey = apiKey
	p.client = &http.Client{Timeout: 120 * time.Second}

	if model := config["text_model"]; model != "" {
		p.textModel = model
	}
	if model := config["image_model"]; model != "" {
		p.imageModel = model
	}
	if baseURL := config["base_url"]; baseURL != "" {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}

	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if endpoint := config["text_endpoint"]; endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	client, err := genai.NewClient(context.Background(), opts...)
	if err != nil {
		return fmt.Errorf("创建gemini客户端失败: %w", err)
	}
	p.sdk = client
	p.newModel = p.configuredModel
	return nil
}

// Close 释放 genai 客户端
func (p *Provider) Close() error {
	if p.sdk == nil {
		return nil
	}
	err := p.sdk.Close()
	p.sdk = nil
	return err
}

func (p *Provider) configuredModel(name string, req llm.CompletionRequest) contentGenerator {
	model := p.sdk.GenerativeModel(name)
	if req.Temperature > 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}
	if req.SystemPrompt != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(req.SystemPrompt))
	}
	return model
}

func (p *Provider) GetName() string {
	return "google gemini"
}

func (p *Provider) GetSupportedModels() []string {
	return p.models
}

// REST 图片接口的请求体
type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// CompleteText 文本生成；req.JSON 为真时要求返回 JSON
func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	name := req.Model
	if name == "" {
		name = p.textModel
	}

	resp, err := p.newModel(name, req).GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return nil, fmt.Errorf("google gemini API错误: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("google gemini未返回任何结果")
	}

	candidate := resp.Candidates[0]
	var text strings.Builder
	for _, pt := range candidate.Content.Parts {
		if t, ok := pt.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	out := &llm.CompletionResponse{
		Text:         text.String(),
		FinishReason: candidate.FinishReason.String(),
		ModelName:    name,
		ProviderName: p.GetName(),
	}
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

var dataURIPattern = regexp.MustCompile(`^data:(.+);base64,(.+)$`)

// GenerateImage 图片生成，参考图以内联数据附在提示词之前
func (p *Provider) GenerateImage(ctx context.Context, req llm.ImageRequest) (*llm.ImageResponse, error) {
	model := req.Model
	if model == "" {
		model = p.imageModel
	}

	parts := make([]part, 0, 2)
	if m := dataURIPattern.FindStringSubmatch(req.ReferenceImage); m != nil {
		parts = append(parts, part{InlineData: &inlineData{MimeType: m[1], Data: m[2]}})
	}
	parts = append(parts, part{Text: req.Prompt})

	body := map[string]interface{}{
		"contents": []content{{Role: "user", Parts: parts}},
	}
	if req.AspectRatio != "" {
		body["generationConfig"] = map[string]interface{}{
			"imageConfig": map[string]string{"aspectRatio": req.AspectRatio},
		}
	}

	resp, err := p.generate(ctx, model, body)
	if err != nil {
		return nil, err
	}

	for _, pt := range resp.Candidates[0].Content.Parts {
		if pt.InlineData != nil {
			return &llm.ImageResponse{
				URL:       fmt.Sprintf("data:%s;base64,%s", pt.InlineData.MimeType, pt.InlineData.Data),
				ModelName: model,
			}, nil
		}
	}
	return nil, llm.ErrNoImageData
}

func (p *Provider) generate(ctx context.Context, model string, body map[string]interface{}) (*generateResponse, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	apiURL := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, model, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(httpResp.Body)
		var errorResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &errorResp) == nil && errorResp.Error.Message != "" {
			return nil, fmt.Errorf("google gemini API错误(%d): %s", httpResp.StatusCode, errorResp.Error.Message)
		}
		return nil, fmt.Errorf("google gemini API错误(%d): %s", httpResp.StatusCode, string(raw))
	}

	var resp generateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 {
		return nil, errors.New("google gemini未返回任何结果")
	}
	return &resp, nil
}
