package content

import (
	"crypto/sha256"
	"encoding/hex"

	"z-bid-writer/internal/domain/entity"
)

// BuildJobs 按文档顺序把提纲展开为生成任务，每个任务携带提纲快照和两份输入
func BuildJobs(outline *entity.Outline, inputs entity.BidInputs) []entity.GenerationJob {
	text := outline.DisplayText()
	var jobs []entity.GenerationJob
	for entry := range outline.Flatten() {
		jobs = append(jobs, entity.NewGenerationJob(entry, text, inputs))
	}
	return jobs
}

// CacheKey 提纲、小节和两份输入文档都相同时得到相同的键；任一输入被修改都会失效
func CacheKey(job entity.GenerationJob) string {
	h := sha256.New()
	for _, part := range []string{
		job.OutlineText, job.ChapterTitle, job.SectionTitle, job.SubSectionTitle, job.ContentSummary,
		job.TechText, job.ScoreText,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
