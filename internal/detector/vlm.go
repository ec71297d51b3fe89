package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"gocv.io/x/gocv"

	"streetsight/internal/config"
	"streetsight/pkg/log"
)

const alignSystemPrompt = `You are a vision assistant. Describe the object in the image and judge whether it matches the claimed label. Respond **only** in valid JSON format with no extra text.
The JSON must include the following fields:
- caption (one short sentence describing the image)
- match (boolean, whether the image shows the claimed label)
- confidence (float, range 0-1)`

type openAIRequest struct {
	Model       string                 `json:"model"`
	Messages    []openAIRequestMessage `json:"messages"`
	Temperature float64                `json:"temperature,omitempty"`
}

type openAIRequestMessage struct {
	Role    string                        `json:"role"`
	Content []openAIRequestMessageContent `json:"content"`
}

type openAIRequestMessageContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageUrl struct {
		Url string `json:"url"`
	} `json:"image_url,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Alignment is the VLM's judgement for one cropped detection.
type Alignment struct {
	Caption    string  `json:"caption"`
	Match      bool    `json:"match"`
	Confidence float32 `json:"confidence"`
}

// VLMClient talks to an OpenAI-compatible vision endpoint.
type VLMClient struct {
	conf    config.VLMConfig
	httpCli *http.Client
}

func NewVLMClient(conf config.VLMConfig) *VLMClient {
	return &VLMClient{
		conf: conf,
		httpCli: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Align asks the VLM to caption crop and score it against label.
func (v *VLMClient) Align(ctx context.Context, label string, crop []byte) (*Alignment, error) {
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(crop)
	query := fmt.Sprintf("Claimed label: %s", label)

	req := openAIRequest{
		Model: v.conf.ModelName,
		Messages: []openAIRequestMessage{
			{Role: "system", Content: []openAIRequestMessageContent{{Type: "text", Text: alignSystemPrompt}}},
			{Role: "user", Content: []openAIRequestMessageContent{
				{Type: "text", Text: query},
				{Type: "image_url", ImageUrl: struct {
					Url string `json:"url"`
				}{Url: dataURL}},
			}},
		},
		Temperature: 0.1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		v.conf.Endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if v.conf.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+v.conf.APIKey)
	}

	resp, err := v.httpCli.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("vlm status %d: %s", resp.StatusCode, string(data))
	}

	var aiResp openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&aiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(aiResp.Choices) == 0 {
		return nil, fmt.Errorf("vlm returned no choices")
	}

	content := strings.TrimSpace(aiResp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.Trim(content, "` \n")

	var alignment Alignment
	if err := json.Unmarshal([]byte(content), &alignment); err != nil {
		return nil, fmt.Errorf("parse alignment answer: %w", err)
	}
	return &alignment, nil
}

// padPct expands the crop around a box so the captioner sees some context.
const padPct = 0.2

// RerankDetector wraps another backend with a caption-generation plus
// semantic-alignment stage: a detection survives only if the generated
// caption matches its claimed label above the configured threshold.
type RerankDetector struct {
	inner          Detector
	vlm            *VLMClient
	name           string
	alignThreshold float32
}

func NewRerankDetector(name string, inner Detector, vlm *VLMClient, alignThreshold float32) *RerankDetector {
	return &RerankDetector{
		inner:          inner,
		vlm:            vlm,
		name:           name,
		alignThreshold: alignThreshold,
	}
}

func (r *RerankDetector) Name() string { return r.name }

func (r *RerankDetector) Detect(ctx context.Context, img []byte, vocabulary []string) ([]Detection, error) {
	detections, err := r.inner.Detect(ctx, img, vocabulary)
	if err != nil {
		return nil, err
	}
	if len(detections) == 0 {
		return nil, nil
	}

	frame, err := decodeFrame(img)
	if err != nil {
		return nil, err
	}
	defer frame.Close()

	logger := log.GetLogger(ctx)

	var kept []Detection
	for _, d := range detections {
		crop, err := cropBox(&frame, d.Box)
		if err != nil {
			logger.WithError(err).Warnf("crop failed for label %s, dropping detection", d.Label)
			continue
		}

		alignment, err := r.vlm.Align(ctx, d.Label, crop)
		if err != nil {
			logger.WithError(err).Warnf("alignment failed for label %s, dropping detection", d.Label)
			continue
		}
		if !alignment.Match || alignment.Confidence < r.alignThreshold {
			logger.Debugf("discarded by alignment: label=%s caption=%q confidence=%.3f",
				d.Label, alignment.Caption, alignment.Confidence)
			continue
		}

		d.Caption = alignment.Caption
		kept = append(kept, d)
	}
	return kept, nil
}

// cropBox cuts the padded box region out of frame and re-encodes it as JPEG.
func cropBox(frame *gocv.Mat, box [4]int) ([]byte, error) {
	w, h := frame.Cols(), frame.Rows()
	x1, y1, x2, y2 := box[0], box[1], box[2], box[3]
	px := int(float64(x2-x1) * padPct)
	py := int(float64(y2-y1) * padPct)

	rect := image.Rect(max(0, x1-px), max(0, y1-py), min(w, x2+px), min(h, y2+py))
	if rect.Empty() {
		return nil, fmt.Errorf("empty crop region for box %v", box)
	}

	region := frame.Region(rect)
	defer region.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, region)
	if err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}
