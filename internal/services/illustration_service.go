// internal/services/illustration_service.go
package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/narratica/narratica/internal/errors"
	"github.com/narratica/narratica/internal/models"
	"github.com/narratica/narratica/internal/utils"
)

// ImageProvider 根据插画描述生成图片地址
type ImageProvider interface {
	Name() string
	GenerateImage(ctx context.Context, prompt, style string, pageNumber int) (string, error)
}

// PlaceholderImageProvider 生成占位图片地址，不调用外部服务
type PlaceholderImageProvider struct {
	baseURL string
}

// NewPlaceholderImageProvider 创建占位图片提供者
func NewPlaceholderImageProvider(baseURL string) *PlaceholderImageProvider {
	return &PlaceholderImageProvider{baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *PlaceholderImageProvider) Name() string {
	return "placeholder"
}

func (p *PlaceholderImageProvider) GenerateImage(ctx context.Context, prompt, style string, pageNumber int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	label := fmt.Sprintf("Page %d", pageNumber)
	if style != "" {
		label += " (" + style + ")"
	}
	return fmt.Sprintf("%s/1024x768/png?text=%s", p.baseURL, url.QueryEscape(label)), nil
}

// IllustrationService 为故事每一页并发生成插画
type IllustrationService struct {
	provider    ImageProvider
	concurrency int
	logger      *utils.Logger
}

// NewIllustrationService 创建插画服务
func NewIllustrationService(provider ImageProvider, concurrency int, logger *utils.Logger) *IllustrationService {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &IllustrationService{provider: provider, concurrency: concurrency, logger: logger}
}

// Illustrate 返回填充了 ImageURL 的文档副本；没有插画描述的页面保持不变
func (s *IllustrationService) Illustrate(ctx context.Context, doc models.StoryDocument, style string) (models.StoryDocument, error) {
	pages := make([]models.Page, len(doc.Pages))
	copy(pages, doc.Pages)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i := range pages {
		if strings.TrimSpace(pages[i].ImagePrompt) == "" {
			continue
		}
		i := i
		g.Go(func() error {
			imageURL, err := s.provider.GenerateImage(gctx, pages[i].ImagePrompt, style, pages[i].PageNumber)
			if err != nil {
				return fmt.Errorf("page %d: %w", pages[i].PageNumber, err)
			}
			// 每个协程只写自己的下标
			pages[i].ImageURL = imageURL
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Error("Illustration failed", map[string]interface{}{
			"provider": s.provider.Name(),
			"error":    err,
		})
		return doc, apperrors.NewProcessingError("生成插画失败", err)
	}

	doc.Pages = pages
	return doc, nil
}
