package types

// RetrievedDocument 是向量检索返回的一个文档片段。
// Similarity 为与查询向量的余弦相似度，负值在检索层被截断为 0。
type RetrievedDocument struct {
	ID         string            `json:"id"`
	Text       string            `json:"text"`
	Similarity float64           `json:"similarity"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// PolicyRef 是一条政策文件引用，字段对应政策节点的元数据。
type PolicyRef struct {
	Title           string   `json:"title"`
	DocumentNumber  string   `json:"document_number,omitempty"`
	IssuingAgency   string   `json:"issuing_agency,omitempty"`
	PublishDate     string   `json:"publish_date,omitempty"`
	Sections        []string `json:"sections,omitempty"`
	RelatedEntities []string `json:"related_entities,omitempty"`
}

// Summary 返回政策引用的单行摘要，供上下文拼装与来源列表使用。
func (p PolicyRef) Summary() string {
	s := p.Title
	if p.DocumentNumber != "" {
		s += "（" + p.DocumentNumber + "）"
	}
	if p.IssuingAgency != "" {
		s += " - " + p.IssuingAgency
	}
	return s
}
