//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hyperjump/shohin/internal/vector"
	ort "github.com/yalue/onnxruntime_go"
)

// Tensor names of sentence-transformers ONNX exports such as all-MiniLM-L6-v2.
var (
	onnxInputNames = []string{"input_ids", "attention_mask", "token_type_ids"}
	onnxOutputName = "last_hidden_state"
)

// ONNXEmbedder runs a sentence-transformers model with ONNX Runtime and
// mean-pools its token states into one vector per text. It requires CGO and
// the onnxruntime shared library. Inference is serialized since the session
// reuses its tensors.
type ONNXEmbedder struct {
	modelID    string
	dimensions int
	maxTokens  int
	tokenizer  Tokenizer
	cache      *EmbeddingCache

	mu      sync.Mutex
	session *ort.AdvancedSession
	inputs  [3]*ort.Tensor[int64]
	hidden  *ort.Tensor[float32]
}

// NewONNXEmbedder loads the model at modelPath. dimensions is the model's
// hidden size; texts are cut to maxTokens tokens.
func NewONNXEmbedder(modelPath string, dimensions, maxTokens, cacheSize int) (*ONNXEmbedder, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("onnx: dimensions must be positive, got %d", dimensions)
	}
	if maxTokens < 2 {
		maxTokens = defaultMaxTokens
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("onnx model: %w", err)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	e := &ONNXEmbedder{
		modelID:    strings.TrimSuffix(filepath.Base(modelPath), filepath.Ext(modelPath)),
		dimensions: dimensions,
		maxTokens:  maxTokens,
		tokenizer:  HashTokenizer{},
		cache:      NewEmbeddingCache(cacheSize),
	}
	inputShape := ort.NewShape(1, int64(maxTokens))
	for i := range e.inputs {
		t, err := ort.NewEmptyTensor[int64](inputShape)
		if err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("failed to create %s tensor: %w", onnxInputNames[i], err)
		}
		e.inputs[i] = t
	}
	hidden, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(maxTokens), int64(dimensions)))
	if err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	e.hidden = hidden

	session, err := ort.NewAdvancedSession(modelPath,
		onnxInputNames, []string{onnxOutputName},
		[]ort.ArbitraryTensor{e.inputs[0], e.inputs[1], e.inputs[2]},
		[]ort.ArbitraryTensor{e.hidden},
		nil)
	if err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	e.session = session
	return e, nil
}

// Embed returns the unit-length embedding of text. Results are cached by text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	enc := e.tokenizer.Encode(text, e.maxTokens)

	e.mu.Lock()
	copy(e.inputs[0].GetData(), enc.InputIDs)
	copy(e.inputs[1].GetData(), enc.AttentionMask)
	copy(e.inputs[2].GetData(), enc.TokenTypeIDs)
	err := e.session.Run()
	var emb []float32
	if err == nil {
		emb = meanPool(e.hidden.GetData(), enc.AttentionMask, e.dimensions)
	}
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	vector.Normalize(emb)
	e.cache.Set(text, emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// ModelID returns the model file name without extension.
func (e *ONNXEmbedder) ModelID() string {
	return e.modelID
}

// Close destroys the session and its tensors.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	for i, t := range e.inputs {
		if t != nil {
			_ = t.Destroy()
			e.inputs[i] = nil
		}
	}
	if e.hidden != nil {
		_ = e.hidden.Destroy()
		e.hidden = nil
	}
	return err
}
