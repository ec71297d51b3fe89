package detector

import (
	"streetsight/internal/config"
)

// Backend names selectable per start command.
const (
	BackendEnsemble        = "yolo-combined"
	BackendOpenVocab       = "dino"
	BackendOpenVocabRerank = "dino-captioned"
)

// BuildRegistry wires the configured Triton and VLM backends into a
// registry. The plain open-vocabulary backend and its re-ranked variant
// share one Triton model.
func BuildRegistry(conf *config.Config) (*Registry, error) {
	registry := NewRegistry()

	ensemble, err := NewEnsembleDetector(BackendEnsemble, conf.Triton.ServerAddr, conf.Triton.EnsembleModels)
	if err != nil {
		return nil, err
	}
	registry.Register(ensemble)

	openVocab, err := NewOpenVocabDetector(BackendOpenVocab, conf.Triton.ServerAddr, conf.Triton.OpenVocabModel)
	if err != nil {
		return nil, err
	}
	registry.Register(openVocab)

	if conf.VLM.Endpoint != "" {
		vlm := NewVLMClient(conf.VLM)
		registry.Register(NewRerankDetector(BackendOpenVocabRerank, openVocab, vlm, conf.Detection.AlignThreshold))
	}

	return registry, nil
}
