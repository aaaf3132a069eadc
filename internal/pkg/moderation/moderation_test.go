package moderation

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnconfigured(t *testing.T) {
	var m Moderator = Unconfigured{}

	_, err := m.ModerateComment(context.Background(), Input{Comment: "hi"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = m.Summarize(context.Background(), "t", "c")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    Verdict
		wantErr bool
	}{
		{"安全", `{"safe": true, "reason": "ordinary feedback"}`, Verdict{Safe: true, Reason: "ordinary feedback"}, false},
		{"不安全", `{"safe": false, "reason": "advertising link"}`, Verdict{Safe: false, Reason: "advertising link"}, false},
		{"理由去空白", "\n{\"safe\": false, \"reason\": \"  spam \\n\"}\n", Verdict{Safe: false, Reason: "spam"}, false},
		{"缺少理由", `{"safe": true}`, Verdict{Safe: true}, false},
		{"缺少 safe", `{"reason": "unsure"}`, Verdict{}, true},
		{"safe 为 null", `{"safe": null, "reason": "x"}`, Verdict{}, true},
		{"safe 类型错误", `{"safe": "yes", "reason": "x"}`, Verdict{}, true},
		{"非 JSON", "The comment looks fine.", Verdict{}, true},
		{"空文本", "", Verdict{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVerdict(tt.text)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrModelResponse)
				assert.Equal(t, Verdict{}, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResponseText(t *testing.T) {
	content := func(parts ...genai.Part) *genai.GenerateContentResponse {
		return &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
		}
	}

	tests := []struct {
		name    string
		resp    *genai.GenerateContentResponse
		want    string
		wantErr bool
	}{
		{"单段文本", content(genai.Text(`{"safe": true}`)), `{"safe": true}`, false},
		{"多段拼接", content(genai.Text(`{"safe":`), genai.Text(` false}`)), `{"safe": false}`, false},
		{"跳过非文本片段", content(genai.Blob{MIMEType: "image/png"}, genai.Text("ok")), "ok", false},
		{"空响应", nil, "", true},
		{"无候选", &genai.GenerateContentResponse{}, "", true},
		{"候选无内容", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}, "", true},
		{"无片段", content(), "", true},
		{"只有非文本片段", content(genai.Blob{MIMEType: "image/png"}), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := responseText(tt.resp)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrModelResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
