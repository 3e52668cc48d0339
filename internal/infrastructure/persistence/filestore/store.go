// Package filestore 基于本地文件的输入与产物存储
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"z-bid-writer/internal/config"
	"z-bid-writer/internal/domain/entity"
	"z-bid-writer/internal/domain/repository"
	apperrors "z-bid-writer/pkg/errors"
	"z-bid-writer/pkg/logger"
	"z-bid-writer/pkg/tracer"
)

const (
	techFile        = "tech.md"
	scoreFile       = "score.md"
	outlineJSONFile = "outline.json"
	outlineMDFile   = "outline.md"
	documentFile    = "content.md"
)

var (
	_ repository.InputRepository    = (*Store)(nil)
	_ repository.ArtifactRepository = (*Store)(nil)
)

// Store 文件存储，所有写入先落临时文件再 rename
type Store struct {
	inputDir   string
	outputDir  string
	outlineDir string
}

// NewStore 创建文件存储
func NewStore(cfg config.StorageConfig) *Store {
	s := &Store{
		inputDir:   cfg.InputDir,
		outputDir:  cfg.OutputDir,
		outlineDir: cfg.OutlineDir,
	}
	if s.inputDir == "" {
		s.inputDir = filepath.Join("data", "inputs")
	}
	if s.outputDir == "" {
		s.outputDir = filepath.Join("data", "outputs")
	}
	if s.outlineDir == "" {
		s.outlineDir = filepath.Join(s.outputDir, "outline")
	}
	return s
}

// Init 创建目录结构，缺失的输入文档以空文件占位，已有文件不受影响
func (s *Store) Init(ctx context.Context) ([]string, error) {
	for _, dir := range []string{s.inputDir, s.outputDir, s.outlineDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeWriteFailed, "failed to create directory").WithDetail(dir)
		}
	}

	var created []string
	for _, path := range []string{s.inputPath(entity.DocTech), s.inputPath(entity.DocScore)} {
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return created, apperrors.Wrap(err, apperrors.CodeInternalError, "failed to stat input").WithDetail(path)
		}
		if err := writeAtomic(path, nil); err != nil {
			return created, err
		}
		created = append(created, path)
	}

	logger.Info(ctx, "storage initialized",
		"input_dir", s.inputDir,
		"output_dir", s.outputDir,
		"created", len(created),
	)
	return created, nil
}

// LoadInputs 读取两份输入文档
func (s *Store) LoadInputs(ctx context.Context) (entity.BidInputs, error) {
	_, span := tracer.Start(ctx, "filestore.LoadInputs")
	defer span.End()

	var inputs entity.BidInputs
	for _, item := range []struct {
		name string
		doc  *entity.SourceDocument
	}{
		{entity.DocTech, &inputs.Tech},
		{entity.DocScore, &inputs.Score},
	} {
		item.doc.Name = item.name
		data, err := os.ReadFile(s.inputPath(item.name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			span.RecordError(err)
			return inputs, apperrors.Wrap(err, apperrors.CodeInternalError, "failed to read input").WithDetail(item.name)
		}
		item.doc.Content = string(data)
		item.doc.Present = true
	}
	return inputs, nil
}

// SaveInput 覆盖写入一份输入文档
func (s *Store) SaveInput(ctx context.Context, name, content string) error {
	if name != entity.DocTech && name != entity.DocScore {
		return apperrors.Newf(apperrors.CodeInvalidParam, "unknown input document %q", name)
	}
	_, span := tracer.Start(ctx, "filestore.SaveInput")
	span.SetAttributes(attribute.String("filestore.input", name))
	defer span.End()

	if err := writeAtomic(s.inputPath(name), []byte(content)); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// SaveOutline 保存提纲 JSON 与 Markdown 预览
func (s *Store) SaveOutline(ctx context.Context, jsonText, markdown string) error {
	_, span := tracer.Start(ctx, "filestore.SaveOutline")
	defer span.End()

	if err := writeAtomic(filepath.Join(s.outlineDir, outlineJSONFile), []byte(jsonText)); err != nil {
		span.RecordError(err)
		return err
	}
	if err := writeAtomic(filepath.Join(s.outlineDir, outlineMDFile), []byte(markdown)); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// LoadOutline 读取提纲 JSON
func (s *Store) LoadOutline(ctx context.Context) (string, error) {
	return readArtifact(filepath.Join(s.outlineDir, outlineJSONFile), apperrors.CodeOutlineNotFound)
}

// LoadOutlineMarkdown 读取提纲 Markdown 预览
func (s *Store) LoadOutlineMarkdown(ctx context.Context) (string, error) {
	return readArtifact(filepath.Join(s.outlineDir, outlineMDFile), apperrors.CodeOutlineNotFound)
}

// SaveDocument 保存标书正文
func (s *Store) SaveDocument(ctx context.Context, text string) error {
	_, span := tracer.Start(ctx, "filestore.SaveDocument")
	span.SetAttributes(attribute.Int("filestore.bytes", len(text)))
	defer span.End()

	if err := writeAtomic(s.DocumentPath(), []byte(text)); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// LoadDocument 读取标书正文
func (s *Store) LoadDocument(ctx context.Context) (string, error) {
	return readArtifact(s.DocumentPath(), apperrors.CodeFileNotFound)
}

// HealthCheck 检查存储目录是否就绪
func (s *Store) HealthCheck(ctx context.Context) error {
	for _, dir := range []string{s.inputDir, s.outputDir, s.outlineDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
	}
	return nil
}

// DocumentPath 正文文件路径
func (s *Store) DocumentPath() string {
	return filepath.Join(s.outputDir, documentFile)
}

func (s *Store) inputPath(name string) string {
	if name == entity.DocScore {
		return filepath.Join(s.inputDir, scoreFile)
	}
	return filepath.Join(s.inputDir, techFile)
}

func readArtifact(path string, missing apperrors.ErrorCode) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", apperrors.Newf(missing, "%s not found", filepath.Base(path)).WithDetail(path)
	}
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInternalError, "failed to read artifact").WithDetail(path)
	}
	if missing == apperrors.CodeOutlineNotFound && strings.TrimSpace(string(data)) == "" {
		return "", apperrors.Newf(missing, "%s is empty", filepath.Base(path)).WithDetail(path)
	}
	return string(data), nil
}

// writeAtomic 写入同目录下的临时文件后 rename，失败时目标文件保持原样
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.CodeWriteFailed, "failed to create directory").WithDetail(dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeWriteFailed, "failed to create temp file").WithDetail(path)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return apperrors.Wrap(err, apperrors.CodeWriteFailed, "failed to write temp file").WithDetail(path)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return apperrors.Wrap(err, apperrors.CodeWriteFailed, "failed to sync temp file").WithDetail(path)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return apperrors.Wrap(err, apperrors.CodeWriteFailed, "failed to close temp file").WithDetail(path)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return apperrors.Wrap(err, apperrors.CodeWriteFailed, "failed to chmod temp file").WithDetail(path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return apperrors.Wrap(err, apperrors.CodeWriteFailed, "failed to replace file").WithDetail(path)
	}
	return nil
}
