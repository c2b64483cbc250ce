package search

// Index declares document fields, the vector-search profile, and the
// semantic-ranking configuration. Created once before upload, deleted at
// teardown; never mutated during a run.
type Index struct {
	Name         string          `json:"name"`
	Fields       []Field         `json:"fields"`
	VectorSearch *VectorSearch   `json:"vectorSearch,omitempty"`
	Semantic     *SemanticSearch `json:"semantic,omitempty"`
}

// Field is one index field definition.
type Field struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Key           bool   `json:"key,omitempty"`
	Searchable    bool   `json:"searchable,omitempty"`
	Filterable    bool   `json:"filterable,omitempty"`
	Sortable      bool   `json:"sortable,omitempty"`
	Retrievable   bool   `json:"retrievable,omitempty"`
	Dimensions    int    `json:"dimensions,omitempty"`
	VectorProfile string `json:"vectorSearchProfile,omitempty"`
}

// VectorSearch couples an ANN algorithm with a profile and a server-side
// vectorizer so queries can be vectorized without a client-side embedding.
type VectorSearch struct {
	Algorithms  []VectorAlgorithm `json:"algorithms"`
	Profiles    []VectorProfile   `json:"profiles"`
	Vectorizers []Vectorizer      `json:"vectorizers"`
}

type VectorAlgorithm struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type VectorProfile struct {
	Name       string `json:"name"`
	Algorithm  string `json:"algorithm"`
	Vectorizer string `json:"vectorizer,omitempty"`
}

type Vectorizer struct {
	Name       string               `json:"name"`
	Kind       string               `json:"kind"`
	Parameters VectorizerParameters `json:"parameters"`
}

type VectorizerParameters struct {
	ResourceURL    string `json:"resourceUrl"`
	DeploymentName string `json:"deploymentName"`
	ModelName      string `json:"modelName"`
}

// SemanticSearch configures the semantic reranker.
type SemanticSearch struct {
	Configurations       []SemanticConfiguration `json:"configurations"`
	DefaultConfiguration string                  `json:"defaultConfiguration,omitempty"`
}

type SemanticConfiguration struct {
	Name              string            `json:"name"`
	PrioritizedFields PrioritizedFields `json:"prioritizedFields"`
}

type PrioritizedFields struct {
	ContentFields []SemanticField `json:"prioritizedContentFields"`
}

type SemanticField struct {
	FieldName string `json:"fieldName"`
}

// PageIndex builds the schema every corpus document must conform to: a key,
// a searchable page chunk, a sortable page ordinal, and a 3072-dim vector
// with an HNSW profile backed by a model-deployment vectorizer.
func PageIndex(name, modelEndpoint, embedDeployment string) Index {
	return Index{
		Name: name,
		Fields: []Field{
			{Name: "id", Type: "Edm.String", Key: true, Filterable: true, Sortable: true, Retrievable: true},
			{Name: "page_chunk", Type: "Edm.String", Searchable: true, Retrievable: true},
			{Name: "page_number", Type: "Edm.Int32", Filterable: true, Sortable: true, Retrievable: true},
			{
				Name:          "page_embedding_text_3_large",
				Type:          "Collection(Edm.Single)",
				Searchable:    true,
				Dimensions:    EmbeddingDimensions,
				VectorProfile: "hnsw_text_3_large",
			},
		},
		VectorSearch: &VectorSearch{
			Algorithms: []VectorAlgorithm{
				{Name: "alg", Kind: "hnsw"},
			},
			Profiles: []VectorProfile{
				{Name: "hnsw_text_3_large", Algorithm: "alg", Vectorizer: "azure_openai_text_3_large"},
			},
			Vectorizers: []Vectorizer{
				{
					Name: "azure_openai_text_3_large",
					Kind: "azureOpenAI",
					Parameters: VectorizerParameters{
						ResourceURL:    modelEndpoint,
						DeploymentName: embedDeployment,
						ModelName:      "text-embedding-3-large",
					},
				},
			},
		},
		Semantic: &SemanticSearch{
			Configurations: []SemanticConfiguration{
				{
					Name: "semantic_config",
					PrioritizedFields: PrioritizedFields{
						ContentFields: []SemanticField{{FieldName: "page_chunk"}},
					},
				},
			},
			DefaultConfiguration: "semantic_config",
		},
	}
}
