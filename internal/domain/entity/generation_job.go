package entity

// GenerationJob 一个小节的正文生成任务，创建后不再修改
type GenerationJob struct {
	SubSectionTitle string `json:"sub_section_title"`
	ContentSummary  string `json:"content_summary"`
	ChapterTitle    string `json:"chapter_title"`
	SectionTitle    string `json:"section_title"`

	// OutlineText 生成时提纲的 Markdown 快照
	OutlineText string `json:"-"`
	TechText    string `json:"-"`
	ScoreText   string `json:"-"`
}

// NewGenerationJob 由提纲条目和输入文档构造任务
func NewGenerationJob(entry OutlineEntry, outlineText string, inputs BidInputs) GenerationJob {
	return GenerationJob{
		SubSectionTitle: entry.SubSectionTitle,
		ContentSummary:  entry.ContentSummary,
		ChapterTitle:    entry.ChapterTitle,
		SectionTitle:    entry.SectionTitle,
		OutlineText:     outlineText,
		TechText:        inputs.Tech.Content,
		ScoreText:       inputs.Score.Content,
	}
}

// JobResult 任务结果；失败时 Content 为占位文本
type JobResult struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Success  bool   `json:"success"`
	Err      string `json:"error,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
	Cached   bool   `json:"cached,omitempty"`
}

// JobOutcome 任务与其结果的配对
type JobOutcome struct {
	Job    GenerationJob `json:"job"`
	Result JobResult     `json:"result"`
}

// JobOutcomes 与任务列表顺序一致的结果序列
type JobOutcomes []JobOutcome

// SuccessCount 成功的任务数
func (o JobOutcomes) SuccessCount() int {
	n := 0
	for _, item := range o {
		if item.Result.Success {
			n++
		}
	}
	return n
}

// Failed 返回失败任务的小节标题
func (o JobOutcomes) Failed() []string {
	var titles []string
	for _, item := range o {
		if !item.Result.Success {
			titles = append(titles, item.Job.SubSectionTitle)
		}
	}
	return titles
}

// Contents 以小节标题为键的正文，重名时后者覆盖前者
func (o JobOutcomes) Contents() GeneratedContent {
	out := make(GeneratedContent, len(o))
	for _, item := range o {
		out[item.Result.Title] = item.Result.Content
	}
	return out
}

// GeneratedContent 小节标题 -> 正文，独立于提纲保存
type GeneratedContent map[string]string
