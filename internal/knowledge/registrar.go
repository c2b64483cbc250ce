package knowledge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kalambet/earthquery/internal/search"
)

// RegistryClient is the subset of the search client used for knowledge
// registration.
type RegistryClient interface {
	GetKnowledgeSource(ctx context.Context, name string) (*search.KnowledgeSource, error)
	CreateKnowledgeSource(ctx context.Context, ks search.KnowledgeSource) error
	CreateOrUpdateKnowledgeBase(ctx context.Context, kb search.KnowledgeBase) error
}

// SourceSpec describes the knowledge source bound to one index.
type SourceSpec struct {
	Name             string
	IndexName        string
	Description      string
	SourceDataSelect string // fields exposed as source data, comma-separated
}

// BaseSpec describes the knowledge base bound to the source and a model
// deployment.
type BaseSpec struct {
	Name               string
	Sources            []string
	ModelEndpoint      string
	ModelDeployment    string
	OutputModality     string
	AnswerInstructions string
}

// Registrar idempotently provisions the knowledge source and base. No local
// state is retained beyond confirming success.
type Registrar struct {
	client RegistryClient
	logger *slog.Logger
}

// NewRegistrar creates a Registrar using the given client.
func NewRegistrar(client RegistryClient) *Registrar {
	return &Registrar{client: client, logger: slog.Default()}
}

// EnsureSource probes for the source by name and creates it only when the
// probe reports "not found". An existing source is reused untouched; any
// other probe failure is a hard error.
func (r *Registrar) EnsureSource(ctx context.Context, spec SourceSpec) error {
	_, err := r.client.GetKnowledgeSource(ctx, spec.Name)
	if err == nil {
		r.logger.Info("knowledge source exists, reusing", "name", spec.Name)
		return nil
	}
	if !search.IsNotFound(err) {
		return fmt.Errorf("probing knowledge source %q: %w", spec.Name, err)
	}

	ks := search.KnowledgeSource{
		Name:        spec.Name,
		Kind:        "searchIndex",
		Description: spec.Description,
		SearchIndex: &search.SearchIndexParameters{
			SearchIndexName:  spec.IndexName,
			SourceDataSelect: spec.SourceDataSelect,
		},
	}
	if err := r.client.CreateKnowledgeSource(ctx, ks); err != nil {
		return err
	}
	r.logger.Info("knowledge source created", "name", spec.Name, "index", spec.IndexName)
	return nil
}

// EnsureBase registers the knowledge base as a create-or-replace upsert, so
// the latest definition always takes effect.
func (r *Registrar) EnsureBase(ctx context.Context, spec BaseSpec) error {
	modality := spec.OutputModality
	if modality == "" {
		modality = "answerSynthesis"
	}

	sources := make([]search.KnowledgeSourceRef, len(spec.Sources))
	for i, name := range spec.Sources {
		sources[i] = search.KnowledgeSourceRef{Name: name}
	}

	kb := search.KnowledgeBase{
		Name:    spec.Name,
		Sources: sources,
		Models: []search.ModelDeployment{
			{
				Kind:         "azureOpenAI",
				Endpoint:     spec.ModelEndpoint,
				DeploymentID: spec.ModelDeployment,
				ModelName:    spec.ModelDeployment,
			},
		},
		Output: &search.OutputConfiguration{
			Modality:           modality,
			AnswerInstructions: spec.AnswerInstructions,
		},
	}
	if err := r.client.CreateOrUpdateKnowledgeBase(ctx, kb); err != nil {
		return err
	}
	r.logger.Info("knowledge base registered", "name", spec.Name, "model", spec.ModelDeployment)
	return nil
}
