package search

import (
	"encoding/json"
	"strings"
)

// EmbeddingDimensions is the fixed length of document embedding vectors.
const EmbeddingDimensions = 3072

// Document is one page-sized semantic unit of the corpus. The JSON field
// names match the index schema, so the same struct serves both the corpus
// payload and the upload batch.
type Document struct {
	ID         string    `json:"id"`
	PageChunk  string    `json:"page_chunk"`
	Embedding  []float32 `json:"page_embedding_text_3_large"`
	PageNumber int       `json:"page_number"`
}

// IndexingResult is the per-document outcome of one upload batch.
type IndexingResult struct {
	Key          string `json:"key"`
	Succeeded    bool   `json:"status"`
	StatusCode   int    `json:"statusCode"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// KnowledgeSource binds a retrieval namespace to one search index, exposing
// a declared subset of fields as source data.
type KnowledgeSource struct {
	Name        string                 `json:"name"`
	Kind        string                 `json:"kind"`
	Description string                 `json:"description,omitempty"`
	SearchIndex *SearchIndexParameters `json:"searchIndexParameters,omitempty"`
}

// SearchIndexParameters configures a searchIndex-kind knowledge source.
type SearchIndexParameters struct {
	SearchIndexName  string `json:"searchIndexName"`
	SourceDataSelect string `json:"sourceDataSelect,omitempty"`
}

// KnowledgeBase binds knowledge sources to a generative model deployment
// plus an answer-synthesis policy.
type KnowledgeBase struct {
	Name    string               `json:"name"`
	Sources []KnowledgeSourceRef `json:"knowledgeSources"`
	Models  []ModelDeployment    `json:"models"`
	Output  *OutputConfiguration `json:"outputConfiguration,omitempty"`
}

// KnowledgeSourceRef names one source a knowledge base draws from.
type KnowledgeSourceRef struct {
	Name string `json:"name"`
}

// ModelDeployment identifies the generative model used for planning and
// answer synthesis.
type ModelDeployment struct {
	Kind         string `json:"kind"`
	Endpoint     string `json:"endpoint"`
	DeploymentID string `json:"deploymentId"`
	ModelName    string `json:"modelName,omitempty"`
}

// OutputConfiguration selects the answer-synthesis mode and instructions.
type OutputConfiguration struct {
	Modality           string `json:"modality"`
	AnswerInstructions string `json:"answerInstructions,omitempty"`
}

// Message is one conversation turn. Content is a list of typed parts; the
// service only emits and accepts text parts today.
type Message struct {
	Role    string           `json:"role"`
	Content []MessageContent `json:"content"`
}

// MessageContent is a single typed part of a message.
type MessageContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TextMessage builds a single-part text message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: []MessageContent{{Type: "text", Text: text}}}
}

// Text concatenates the message's text parts.
func (m Message) Text() string {
	var b strings.Builder
	for _, c := range m.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// KnowledgeSourceParams selects and tunes one knowledge source for a
// retrieval request.
type KnowledgeSourceParams struct {
	KnowledgeSourceName        string  `json:"knowledgeSourceName"`
	Kind                       string  `json:"kind,omitempty"`
	RerankerThreshold          float64 `json:"rerankerThreshold,omitempty"`
	AlwaysQuerySource          bool    `json:"alwaysQuerySource,omitempty"`
	IncludeReferences          bool    `json:"includeReferences,omitempty"`
	IncludeReferenceSourceData bool    `json:"includeReferenceSourceData,omitempty"`
}

// RetrievalRequest is the body of one retrieve call: the conversation so
// far plus source-selection parameters.
type RetrievalRequest struct {
	Messages        []Message               `json:"messages"`
	SourceParams    []KnowledgeSourceParams `json:"knowledgeSourceParams,omitempty"`
	ReasoningEffort string                  `json:"reasoningEffort,omitempty"`
}

// RetrievalResponse is the result of one retrieve call.
type RetrievalResponse struct {
	Response   []Message   `json:"response"`
	References []Reference `json:"references"`
	Activity   []Activity  `json:"activity"`
}

// AnswerText returns the synthesized answer from the first response message.
func (r *RetrievalResponse) AnswerText() string {
	if len(r.Response) == 0 {
		return ""
	}
	return r.Response[0].Text()
}

// TypeUnknown labels reference and activity records whose wire shape carries
// none of the known type keys.
const TypeUnknown = "unknown"

// Reference is one supporting passage for a synthesized answer. The wire
// shape is loosely typed: the record's type may arrive under several
// alternate keys, so decoding probes each before falling back to
// TypeUnknown. Raw preserves the original payload for diagnostics.
type Reference struct {
	Type           string          `json:"-"`
	ID             string          `json:"id"`
	ActivitySource int             `json:"activitySource"`
	DocKey         string          `json:"docKey"`
	RerankerScore  float64         `json:"rerankerScore"`
	SourceData     json.RawMessage `json:"sourceData,omitempty"`
	Raw            json.RawMessage `json:"-"`
}

func (r *Reference) UnmarshalJSON(data []byte) error {
	type plain Reference
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Reference(p)
	r.Raw = append(json.RawMessage(nil), data...)
	r.Type = probeTypeKey(data, "type", "kind", "referenceType")
	return nil
}

func (r Reference) MarshalJSON() ([]byte, error) {
	type plain Reference
	m := map[string]any{}
	b, err := json.Marshal(plain(r))
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	m["type"] = r.Type
	return json.Marshal(m)
}

// Activity is one diagnostic trace entry from query planning or execution.
// Like Reference, its type key varies across record shapes.
type Activity struct {
	Type         string          `json:"-"`
	ID           int             `json:"id"`
	TargetIndex  string          `json:"targetIndex,omitempty"`
	Query        json.RawMessage `json:"query,omitempty"`
	InputTokens  int             `json:"inputTokens,omitempty"`
	OutputTokens int             `json:"outputTokens,omitempty"`
	ElapsedMs    int             `json:"elapsedMs,omitempty"`
	Count        int             `json:"count,omitempty"`
	Raw          json.RawMessage `json:"-"`
}

func (a *Activity) UnmarshalJSON(data []byte) error {
	type plain Activity
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = Activity(p)
	a.Raw = append(json.RawMessage(nil), data...)
	a.Type = probeTypeKey(data, "type", "kind", "activityType")
	return nil
}

func (a Activity) MarshalJSON() ([]byte, error) {
	type plain Activity
	m := map[string]any{}
	b, err := json.Marshal(plain(a))
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	m["type"] = a.Type
	return json.Marshal(m)
}

// probeTypeKey reads the first of the given keys holding a non-empty string.
func probeTypeKey(data []byte, keys ...string) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return TypeUnknown
	}
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
	}
	return TypeUnknown
}
