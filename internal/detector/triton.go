package detector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Trendyol/go-triton-client/base"
	tritonGrpc "github.com/Trendyol/go-triton-client/client/grpc"
	"gocv.io/x/gocv"
)

func newTritonClient(serverAddr string) (base.Client, error) {
	return tritonGrpc.NewClient(
		serverAddr,
		false, // verbose logging
		30,    // connection timeout in seconds
		30,    // network timeout in seconds
		false, // use ssl
		true,  // insecure connection
		nil,   // existing grpc connection
		nil,   // logger
	)
}

func checkServer(ctx context.Context, cli base.Client, modelNames []string) error {
	if isLive, err := cli.IsServerLive(ctx, nil); err != nil {
		return err
	} else if !isLive {
		return errors.New("triton server is not live")
	}
	if isReady, err := cli.IsServerReady(ctx, nil); err != nil {
		return err
	} else if !isReady {
		return errors.New("triton server is not ready")
	}
	for _, name := range modelNames {
		if isReady, err := cli.IsModelReady(ctx, name, "1", nil); err != nil {
			return err
		} else if !isReady {
			return fmt.Errorf("triton model %s is not ready", name)
		}
	}
	return nil
}

// inferFrame runs one model over one decoded frame and parses the
// DETECTIONS output: float32 values with shape [N, 6] containing
// [x1, y1, x2, y2, confidence, class_id].
func inferFrame(ctx context.Context, cli base.Client, modelName string, frame *gocv.Mat,
	extraInputs []base.InferInput) ([][6]float32, error) {
	frameInput := tritonGrpc.NewInferInput("FRAME", "BYTES",
		[]int64{int64(frame.Rows()), int64(frame.Cols()), 3}, nil)
	if err := frameInput.SetData(frame.ToBytes(), true); err != nil {
		return nil, fmt.Errorf("failed to set FRAME input data: %v", err)
	}
	frameInput.SetDatatype("UINT8")

	inputs := append([]base.InferInput{frameInput}, extraInputs...)
	outputs := []base.InferOutput{
		tritonGrpc.NewInferOutput("DETECTIONS", map[string]any{"binary_data": false}),
	}

	response, err := cli.Infer(ctx, modelName, "1", inputs, outputs, nil)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %v", err)
	}

	raw, err := response.AsFloat32Slice("DETECTIONS")
	if err != nil {
		return nil, fmt.Errorf("failed to get detection data: %v", err)
	}

	var rows [][6]float32
	for i := 0; i+5 < len(raw); i += 6 {
		rows = append(rows, [6]float32{raw[i], raw[i+1], raw[i+2], raw[i+3], raw[i+4], raw[i+5]})
	}
	return rows, nil
}

func decodeFrame(image []byte) (gocv.Mat, error) {
	frame, err := gocv.IMDecode(image, gocv.IMReadColor)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("decode image: %w", err)
	}
	if frame.Empty() {
		frame.Close()
		return gocv.NewMat(), errors.New("decode image: empty frame")
	}
	return frame, nil
}

// EnsembleDetector merges the outputs of several single-purpose models,
// each trained on one class. The vocabulary argument is ignored; every
// model's detections carry its configured label.
type EnsembleDetector struct {
	mu     sync.Mutex
	cli    base.Client
	name   string
	models map[string]string // model name -> label
}

func NewEnsembleDetector(name, serverAddr string, models map[string]string) (*EnsembleDetector, error) {
	if len(models) == 0 {
		return nil, errors.New("ensemble detector needs at least one model")
	}
	cli, err := newTritonClient(serverAddr)
	if err != nil {
		return nil, err
	}
	return &EnsembleDetector{cli: cli, name: name, models: models}, nil
}

func (e *EnsembleDetector) Name() string { return e.name }

func (e *EnsembleDetector) HealthCheck(ctx context.Context) error {
	names := make([]string, 0, len(e.models))
	for name := range e.models {
		names = append(names, name)
	}
	return checkServer(ctx, e.cli, names)
}

func (e *EnsembleDetector) Detect(ctx context.Context, image []byte, _ []string) ([]Detection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	frame, err := decodeFrame(image)
	if err != nil {
		return nil, err
	}
	defer frame.Close()

	var detections []Detection
	for modelName, label := range e.models {
		rows, err := inferFrame(ctx, e.cli, modelName, &frame, nil)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", modelName, err)
		}
		for _, row := range rows {
			detections = append(detections, Detection{
				Box:   [4]int{int(row[0]), int(row[1]), int(row[2]), int(row[3])},
				Label: label,
				Score: row[4],
			})
		}
	}
	return detections, nil
}

// OpenVocabDetector drives a grounding model with a runtime label list.
// The class_id column of each detection row indexes into the vocabulary.
type OpenVocabDetector struct {
	mu        sync.Mutex
	cli       base.Client
	name      string
	modelName string
}

func NewOpenVocabDetector(name, serverAddr, modelName string) (*OpenVocabDetector, error) {
	cli, err := newTritonClient(serverAddr)
	if err != nil {
		return nil, err
	}
	return &OpenVocabDetector{cli: cli, name: name, modelName: modelName}, nil
}

func (o *OpenVocabDetector) Name() string { return o.name }

func (o *OpenVocabDetector) HealthCheck(ctx context.Context) error {
	return checkServer(ctx, o.cli, []string{o.modelName})
}

func (o *OpenVocabDetector) Detect(ctx context.Context, image []byte, vocabulary []string) ([]Detection, error) {
	if len(vocabulary) == 0 {
		return nil, errors.New("open-vocabulary detector needs a label vocabulary")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	frame, err := decodeFrame(image)
	if err != nil {
		return nil, err
	}
	defer frame.Close()

	labelsJSON, err := json.Marshal(vocabulary)
	if err != nil {
		return nil, fmt.Errorf("marshal vocabulary: %w", err)
	}
	labelsInput := tritonGrpc.NewInferInput("LABELS", "BYTES", []int64{1}, nil)
	if err := labelsInput.SetData(labelsJSON, true); err != nil {
		return nil, fmt.Errorf("failed to set LABELS input data: %v", err)
	}

	rows, err := inferFrame(ctx, o.cli, o.modelName, &frame, []base.InferInput{labelsInput})
	if err != nil {
		return nil, err
	}

	var detections []Detection
	for _, row := range rows {
		classId := int(row[5])
		if classId < 0 || classId >= len(vocabulary) {
			continue
		}
		detections = append(detections, Detection{
			Box:   [4]int{int(row[0]), int(row[1]), int(row[2]), int(row[3])},
			Label: vocabulary[classId],
			Score: row[4],
		})
	}
	return detections, nil
}
